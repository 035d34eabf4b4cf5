package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
	"github.com/custodia-labs/jira-q-sync/internal/core/services"
)

var accessCmd = &cobra.Command{
	Use:   "access <project-key>...",
	Short: "Show who may browse a project's issues",
	Long: `Resolves each project's permission scheme into the users and groups
that will be attached to its documents. Projects whose resolution fails
show the fallback group that sync would apply.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAccess,
}

func init() {
	rootCmd.AddCommand(accessCmd)
}

func runAccess(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	for i, key := range normaliseProjects(args) {
		if i > 0 {
			cmd.Println()
		}
		access := a.Access.Resolve(cmd.Context(), key)
		acl := services.BuildACL(key, access)

		cmd.Println(title("Project " + key))
		if access.Degraded {
			cmd.Println(warn("Degraded: " + access.DegradedReason))
		}
		cmd.Println(field("Relation", acl.MemberRelation))
		cmd.Println("Users (" + strconv.Itoa(len(access.Users())) + "):")
		cmd.Println(list(describe(access.Users())))
		cmd.Println("Groups (" + strconv.Itoa(len(access.Groups())) + "):")
		cmd.Println(list(describe(access.Groups())))
	}
	return nil
}

func describe(principals []domain.Principal) []string {
	out := make([]string, 0, len(principals))
	for _, p := range principals {
		line := p.ID
		if p.DisplayName != "" && !strings.EqualFold(p.DisplayName, p.ID) {
			line += " " + muted("("+p.DisplayName+")")
		}
		out = append(out, line)
	}
	return out
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return strconv.Itoa(n) + " " + many
}
