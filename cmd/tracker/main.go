// Command tracker records campaign events on a timeline.
package main

import "github.com/mesh-intelligence/tracker/internal/cli"

func main() {
	cli.Execute()
}
