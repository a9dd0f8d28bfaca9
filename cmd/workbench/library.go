package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/prompt-workbench/internal/library"
	"github.com/jonathan/prompt-workbench/internal/observability"
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Manage saved system prompts",
}

var librarySaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save a system prompt to the library",
	Long:  "Saves prompt text from --prompt, --prompt-file or stdin. Unsafe characters in the name become underscores.",
	Args:  cobra.ExactArgs(1),
	RunE:  runLibrarySave,
}

var libraryLoadCmd = &cobra.Command{
	Use:   "load <name>",
	Short: "Print a saved prompt",
	Args:  cobra.ExactArgs(1),
	RunE:  runLibraryLoad,
}

var libraryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved prompts",
	Args:  cobra.NoArgs,
	RunE:  runLibraryList,
}

var (
	librarySavePrompt  string
	librarySaveFile    string
	librarySaveScore   int
	librarySaveContext map[string]string
	libraryLoadJSON    bool
)

func init() {
	librarySaveCmd.Flags().StringVarP(&librarySavePrompt, "prompt", "p", "", "Prompt text")
	librarySaveCmd.Flags().StringVar(&librarySaveFile, "prompt-file", "", "Read the prompt from a file")
	librarySaveCmd.Flags().IntVar(&librarySaveScore, "score", 0, "Score the prompt achieved (0-100)")
	librarySaveCmd.Flags().StringToStringVar(&librarySaveContext, "context", nil, "Context metadata, e.g. --context industry=Energy,region=Europe")
	librarySaveCmd.MarkFlagsMutuallyExclusive("prompt", "prompt-file")

	libraryLoadCmd.Flags().BoolVar(&libraryLoadJSON, "json", false, "Print the entry with its metadata as JSON")

	libraryCmd.AddCommand(librarySaveCmd, libraryLoadCmd, libraryListCmd)
	rootCmd.AddCommand(libraryCmd)
}

func openLibrary(cmd *cobra.Command) (*library.Library, func(), error) {
	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return nil, nil, err
	}
	return a.svc.Library(), a.Close, nil
}

func runLibrarySave(cmd *cobra.Command, args []string) error {
	lib, done, err := openLibrary(cmd)
	if err != nil {
		return err
	}
	defer done()

	content := librarySavePrompt
	switch {
	case librarySaveFile != "":
		data, err := os.ReadFile(librarySaveFile)
		if err != nil {
			return fmt.Errorf("failed to read prompt file: %w", err)
		}
		content = string(data)
	case content == "":
		data, err := readAllFrom(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read prompt from stdin: %w", err)
		}
		content = data
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("prompt is empty")
	}

	var score *int
	if cmd.Flags().Changed("score") {
		if librarySaveScore < 0 || librarySaveScore > 100 {
			return fmt.Errorf("--score must be between 0 and 100")
		}
		score = &librarySaveScore
	}

	name, err := lib.SaveEntry(args[0], content, score, librarySaveContext)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Saved prompt as %q\n", name)
	return nil
}

func runLibraryLoad(cmd *cobra.Command, args []string) error {
	lib, done, err := openLibrary(cmd)
	if err != nil {
		return err
	}
	defer done()

	entry, err := lib.LoadEntry(args[0])
	if err != nil {
		return err
	}
	if libraryLoadJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entry)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), entry.Content)
	return nil
}

func runLibraryList(cmd *cobra.Command, _ []string) error {
	lib, done, err := openLibrary(cmd)
	if err != nil {
		return err
	}
	defer done()

	entries, err := lib.Entries()
	if err != nil {
		return err
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintLibrary(entries)
	return nil
}
