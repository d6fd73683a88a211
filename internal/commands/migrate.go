package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"VMS-backend/internal/attendance"
	"VMS-backend/internal/platform/config"
	"VMS-backend/internal/platform/db"
)

var seedProjects []string

var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the attendance tables",
	Long: `Create the attendance tables. For MySQL the embedded schema.sql is applied; for SQLite the tables are created from the models.
Use --project id:name (SQLite only) to register projects for local development.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		projects, err := parseProjects(seedProjects)
		if err != nil {
			return err
		}

		b, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer b.close()

		if cfg.DB.Driver == config.DriverMySQL {
			if len(projects) > 0 {
				return errors.New("--project is only supported with the sqlite driver")
			}
			n, err := db.Migrate(cmd.Context(), b.mysql)
			if err != nil {
				return err
			}
			cmd.Printf("applied %d statements to %s\n", n, cfg.DB.DBName)
			return nil
		}

		for _, p := range projects {
			if err := b.gormStore.SaveProject(cmd.Context(), p); err != nil {
				return fmt.Errorf("save project %d: %w", p.ID, err)
			}
			cmd.Printf("project %d: %s\n", p.ID, p.Name)
		}
		cmd.Printf("sqlite schema ready at %s\n", cfg.DB.SQLitePath)
		return nil
	},
}

// parseProjects: "42:Beach Cleanup" 形式
func parseProjects(in []string) ([]attendance.Project, error) {
	out := make([]attendance.Project, 0, len(in))
	for _, s := range in {
		idStr, name, ok := strings.Cut(s, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid --project %q (want id:name)", s)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid project id in %q", s)
		}
		out = append(out, attendance.Project{ID: id, Name: strings.TrimSpace(name)})
	}
	return out, nil
}

func init() {
	MigrateCmd.Flags().StringArrayVar(&seedProjects, "project", nil, "register a project as id:name (sqlite only, repeatable)")
}
