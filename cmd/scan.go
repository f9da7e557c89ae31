/*
Copyright 2024 SerialLink Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smchurchill/dewd/internal/session"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List serial ports present on this host",
	Long: `List the serial ports the host currently exposes, independent of which
ones a running dispatcher has been configured to open. Useful for deciding
what to pass to "dewd serve"'s --read/--read-write/--write flags.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringArray("exclude", nil, "regex pattern of port names to exclude (repeatable)")
	scanCmd.Flags().Bool("json", false, "output as JSON")
}

func runScan(cmd *cobra.Command, args []string) error {
	excludePatterns, _ := cmd.Flags().GetStringArray("exclude")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	scanner, err := session.NewScanner(excludePatterns)
	if err != nil {
		return fmt.Errorf("invalid exclude pattern: %w", err)
	}

	ports, err := scanner.Scan()
	if err != nil {
		return fmt.Errorf("failed to scan serial ports: %w", err)
	}

	if jsonOutput {
		data, err := json.MarshalIndent(ports, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal ports: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}

	for _, p := range ports {
		fmt.Printf("%s\t%s\n", p.Name, p.Description)
	}
	return nil
}
