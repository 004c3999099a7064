package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/inward-bound/internal/cli"
	"github.com/Veraticus/inward-bound/internal/config"
	"github.com/Veraticus/inward-bound/internal/rules"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the classification ruleset",
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesCheckCmd())

	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the active rules in evaluation order",
		RunE: func(_ *cobra.Command, _ []string) error {
			engine, rulesPath, err := initRuleEngine()
			if err != nil {
				return err
			}

			if rulesPath == "" {
				fmt.Println(cli.FormatInfo("No rules file configured, showing built-in defaults"))
			} else {
				fmt.Println(cli.FormatTitle("Rules from " + rulesPath))
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PRIORITY\tNAME\tCATEGORY\tSOURCE\tUPLOAD")
			for _, rule := range engine.Rules() {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%v\n",
					rule.Priority, rule.Name, rule.Category, rule.Source, rule.Upload)
			}
			return w.Flush()
		},
	}
}

func rulesCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a rules file without loading it",
		RunE: func(c *cobra.Command, _ []string) error {
			path, _ := c.Flags().GetString("file")
			if path == "" {
				path = config.ExpandPath(viper.GetString("rules.path"))
			}
			if path == "" {
				return fmt.Errorf("no rules file given: pass --file or set rules.path")
			}

			engine, err := rules.NewEngine(rules.DefaultRules())
			if err != nil {
				return err
			}
			if err := engine.LoadFile(path); err != nil {
				fmt.Println(cli.FormatError("Ruleset is invalid"))
				return err
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf(
				"Ruleset is valid: %d rules", len(engine.Rules()))))
			return nil
		},
	}

	cmd.Flags().String("file", "", "rules file to validate (default: configured rules.path)")

	return cmd
}
