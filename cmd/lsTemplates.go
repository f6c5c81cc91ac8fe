/*
Copyright © 2025 Ken'ichiro Oyama <k1lowxb@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"strings"

	"github.com/aippt/aippt"
	"github.com/aippt/aippt/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	lsCatalog string
	lsType    string
)

var lsTemplatesCmd = &cobra.Command{
	Use:   "ls-templates [CATALOG_FILE]",
	Short: "list templates of a template catalog",
	Long:  `list templates of a template catalog with their placeholders.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := lsCatalog
		if len(args) > 0 {
			path = args[0]
		}
		if path == "" {
			cfg, err := config.Load(profile)
			if err != nil {
				return err
			}
			path = cfg.Catalog
		}
		if path == "" {
			return fmt.Errorf("template catalog is required. Use CATALOG_FILE or set catalog in the config file")
		}
		catalog, err := aippt.LoadCatalog(path)
		if err != nil {
			return err
		}
		bold := color.New(color.Bold)
		gray := color.New(color.FgHiBlack)
		for _, st := range catalog.Types() {
			if lsType != "" && string(st) != lsType {
				continue
			}
			bold.Fprintf(cmd.OutOrStdout(), "%s\n", st)
			for _, t := range catalog.ByType(st) {
				var parts []string
				for _, p := range t.Placeholders() {
					parts = append(parts, fmt.Sprintf("%s×%d", p.Type, p.Count))
				}
				if n := t.ImageCount(); n > 0 {
					parts = append(parts, fmt.Sprintf("image×%d", n))
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  %s\t%s\n", t.ID, strings.Join(parts, " "))
			}
		}
		if err := catalog.Validate(); err != nil {
			gray.Fprintf(cmd.ErrOrStderr(), "%v\n", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lsTemplatesCmd)
	lsTemplatesCmd.Flags().StringVarP(&lsCatalog, "catalog", "c", "", "template catalog JSON file")
	lsTemplatesCmd.Flags().StringVarP(&lsType, "type", "t", "", "list only templates of this slide type")
}
