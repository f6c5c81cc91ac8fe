package cmd

import (
	"os"
	"strings"

	"github.com/aippt/aippt"
	"github.com/aippt/aippt/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check aippt environment and configuration",
	Long:  `Check aippt environment and configuration to ensure everything is set up correctly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Color setup
		green := color.New(color.FgGreen)
		red := color.New(color.FgRed)
		yellow := color.New(color.FgYellow)
		bold := color.New(color.Bold)

		allOK := true

		// 1. Check configuration file
		cmd.Print("🔧 Checking configuration file ... ")
		cfg, err := config.Load(profile)
		if err != nil {
			red.Println("✗ CONFIG ERROR")
			cmd.Printf("   Error loading config: %v\n", err)
			cmd.Println()
			red.Println("⚠️  Setup is incomplete.")
			return nil
		}
		green.Println("✓ OK")

		// 2. Check template catalog
		cmd.Print("📚 Checking template catalog ... ")
		switch {
		case cfg.Catalog == "":
			yellow.Println("⚠️ NOT CONFIGURED")
			cmd.Println("   Pass --catalog to build or set catalog in the config file")
		default:
			catalog, err := aippt.LoadCatalog(cfg.Catalog)
			if err != nil {
				red.Println("✗ INVALID")
				cmd.Printf("   %v\n", err)
				allOK = false
				break
			}
			if err := catalog.Validate(); err != nil {
				red.Println("✗ INCOMPLETE")
				cmd.Printf("   %v\n", err)
				allOK = false
				break
			}
			green.Println("✓ OK")
			cmd.Printf("   %d templates in %s\n", len(catalog.Templates()), cfg.Catalog)
		}

		// 3. Check measurement font
		cmd.Print("🔤 Checking measurement font ... ")
		if cfg.Fonts.Regular == "" {
			green.Println("✓ OK")
			cmd.Println("   Using the built-in font")
		} else {
			ttf, err := os.ReadFile(cfg.Fonts.Regular)
			if err == nil {
				_, err = aippt.NewFontMeasurer(ttf)
			}
			if err != nil {
				red.Println("✗ INVALID FONT")
				cmd.Printf("   %v\n", err)
				allOK = false
			} else {
				green.Println("✓ OK")
				cmd.Printf("   Font: %s\n", cfg.Fonts.Regular)
			}
		}

		// 4. Check image sources
		cmd.Print("🖼  Checking image sources ... ")
		var missing []string
		for _, src := range cfg.Images {
			if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
				continue
			}
			if _, err := os.Stat(src); err != nil {
				missing = append(missing, src)
			}
		}
		switch {
		case len(missing) > 0:
			red.Println("✗ NOT FOUND")
			for _, m := range missing {
				cmd.Printf("   %s\n", m)
			}
			allOK = false
		case len(cfg.Images) == 0 && cfg.ImageSearchCommand == "":
			yellow.Println("⚠️ NONE")
			cmd.Println("   Image placeholders will keep their authored pictures")
		default:
			green.Println("✓ OK")
		}

		// 5. Check selection rules
		cmd.Print("🧭 Checking selection rules ... ")
		if _, err := aippt.New(aippt.NewCatalog(nil), aippt.WithRules(rulesFromConfig(cfg.Rules))); err != nil {
			red.Println("✗ INVALID RULE")
			cmd.Printf("   %v\n", err)
			allOK = false
		} else {
			green.Println("✓ OK")
			cmd.Printf("   %d rules\n", len(cfg.Rules))
		}

		// Final message
		cmd.Println()
		if allOK {
			bold.Printf("🎉 ")
			green.Print("All checks passed! You are ready to use aippt")
			bold.Println(".")
			cmd.Println()
			cmd.Println("Try building a deck from an outline:")
			yellow.Println("  aippt build outline.md -o slides.json")
		} else {
			red.Println("⚠️  Setup is incomplete.")
			cmd.Println("\nPlease fix the issues above to use aippt properly.")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
