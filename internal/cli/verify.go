package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the timeline against a full replay of the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(s *session) error {
				if err := s.timeline.Verify(); err != nil {
					return sysError("verify: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok: %d events, %d valid\n",
					s.timeline.Len(), s.timeline.ValidLen())
				return nil
			})
		},
	}
}
