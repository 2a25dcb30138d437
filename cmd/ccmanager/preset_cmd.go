package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/worktree-tools/ccmanager/internal/config"
)

// handlePreset manages command presets (list, add, rm, default)
func handlePreset(args []string) {
	// Extract --json and -q/--quiet flags from anywhere in args
	var jsonMode, quietMode bool
	var filteredArgs []string
	for _, arg := range args {
		switch arg {
		case "--json":
			jsonMode = true
		case "--quiet", "-q":
			quietMode = true
		default:
			filteredArgs = append(filteredArgs, arg)
		}
	}
	out := NewCLIOutput(jsonMode, quietMode)

	if len(filteredArgs) == 0 {
		// Default to list
		handlePresetList(out, jsonMode)
		return
	}

	switch filteredArgs[0] {
	case "list", "ls":
		handlePresetList(out, jsonMode)
	case "add", "new":
		handlePresetAdd(out, filteredArgs[1:])
	case "rm", "remove", "delete":
		if len(filteredArgs) < 2 {
			out.Error("preset name or id is required", ErrCodeInvalidOperation)
			if !jsonMode {
				fmt.Println("Usage: ccmanager preset rm <name|id>")
			}
			os.Exit(1)
		}
		handlePresetRemove(out, filteredArgs[1])
	case "default":
		if len(filteredArgs) < 2 {
			// Show current default
			store := openStore(out)
			p := store.DefaultPreset()
			out.Success(fmt.Sprintf("Default preset: %s (%s)", p.Name, TruncateID(p.ID)), map[string]interface{}{
				"success":    true,
				"default_id": p.ID,
				"name":       p.Name,
			})
			return
		}
		handlePresetSetDefault(out, filteredArgs[1])
	default:
		out.Error(fmt.Sprintf("unknown preset command: %s", filteredArgs[0]), ErrCodeInvalidOperation)
		if !jsonMode {
			fmt.Println()
			fmt.Println("Usage: ccmanager preset <command>")
			fmt.Println()
			fmt.Println("Commands:")
			fmt.Println("  list              List all presets")
			fmt.Println("  add [options]     Add a new preset")
			fmt.Println("  rm <name|id>      Delete a preset")
			fmt.Println("  default [name]    Show or set the default preset")
		}
		os.Exit(1)
	}
}

func handlePresetList(out *CLIOutput, jsonMode bool) {
	store := openStore(out)
	presets := store.SortedPresets()
	_, defaultID := store.Presets()

	if jsonMode {
		var list []map[string]interface{}
		for _, p := range presets {
			list = append(list, map[string]interface{}{
				"id":            p.ID,
				"name":          p.Name,
				"command":       p.Command,
				"args":          p.Args,
				"fallback_args": p.FallbackArgs,
				"strategy":      p.DetectionStrategy,
				"is_default":    p.ID == defaultID,
			})
		}
		out.Print("", map[string]interface{}{
			"success":    true,
			"presets":    list,
			"default_id": defaultID,
			"total":      len(presets),
		})
		return
	}

	fmt.Println("Presets:")
	for _, p := range presets {
		marker := " "
		if p.ID == defaultID {
			marker = "*"
		}
		cmd := p.Command
		if len(p.Args) > 0 {
			cmd += " " + strings.Join(p.Args, " ")
		}
		fmt.Printf("  %s %-20s %-30s %s\n", marker, p.Name, cmd, TruncateID(p.ID))
	}
	fmt.Printf("\nTotal: %d presets (* = default)\n", len(presets))
}

func handlePresetAdd(out *CLIOutput, args []string) {
	fs := flag.NewFlagSet("preset add", flag.ExitOnError)
	name := fs.String("name", "", "Preset name (required, unique)")
	nameShort := fs.String("n", "", "Preset name (short)")
	command := fs.String("cmd", "", "Command to launch (defaults to 'claude')")
	commandShort := fs.String("c", "", "Command to launch (short)")
	strategy := fs.String("strategy", "claude", "Detection strategy: claude or gemini")
	makeDefault := fs.Bool("default", false, "Make this the default preset")

	var presetArgs, fallbackArgs []string
	fs.Func("arg", "Command argument (can specify multiple times)", func(s string) error {
		presetArgs = append(presetArgs, s)
		return nil
	})
	fs.Func("fallback-arg", "Fallback argument used with run --resume (can specify multiple times)", func(s string) error {
		fallbackArgs = append(fallbackArgs, s)
		return nil
	})

	fs.Usage = func() {
		fmt.Println("Usage: ccmanager preset add -n <name> [options]")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  ccmanager preset add -n \"Claude continue\" --arg --continue")
		fmt.Println("  ccmanager preset add -n Gemini -c gemini --strategy gemini")
	}

	args = normalizeArgs(fs, args)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	presetName := firstNonEmpty(*name, *nameShort)
	if presetName == "" {
		out.Error("preset name is required (-n)", ErrCodeInvalidOperation)
		os.Exit(1)
	}

	store := openStore(out)
	added, err := store.AddPreset(config.CommandPreset{
		Name:              presetName,
		Command:           firstNonEmpty(*command, *commandShort),
		Args:              presetArgs,
		FallbackArgs:      fallbackArgs,
		DetectionStrategy: *strategy,
	})
	if err != nil {
		out.Error(fmt.Sprintf("%v", err), ErrCodeInvalidOperation)
		os.Exit(1)
	}

	if *makeDefault {
		if err := store.SetDefaultPreset(added.ID); err != nil {
			out.Error(fmt.Sprintf("preset added but could not set default: %v", err), ErrCodeInvalidOperation)
			os.Exit(1)
		}
	}

	out.Success(fmt.Sprintf("Added preset: %s (%s)", added.Name, TruncateID(added.ID)), map[string]interface{}{
		"success":    true,
		"id":         added.ID,
		"name":       added.Name,
		"command":    added.Command,
		"is_default": *makeDefault,
	})
}

func handlePresetRemove(out *CLIOutput, identifier string) {
	store := openStore(out)
	p := findPreset(store, identifier)
	if p == nil {
		out.Error(fmt.Sprintf("preset not found: %s", identifier), ErrCodeNotFound)
		os.Exit(1)
	}

	if err := store.DeletePreset(p.ID); err != nil {
		out.Error(fmt.Sprintf("%v", err), ErrCodeInvalidOperation)
		os.Exit(1)
	}

	out.Success(fmt.Sprintf("Removed preset: %s", p.Name), map[string]interface{}{
		"success": true,
		"id":      p.ID,
		"name":    p.Name,
		"removed": true,
	})
}

func handlePresetSetDefault(out *CLIOutput, identifier string) {
	store := openStore(out)
	p := findPreset(store, identifier)
	if p == nil {
		out.Error(fmt.Sprintf("preset not found: %s", identifier), ErrCodeNotFound)
		os.Exit(1)
	}

	if err := store.SetDefaultPreset(p.ID); err != nil {
		out.Error(fmt.Sprintf("%v", err), ErrCodeInvalidOperation)
		os.Exit(1)
	}

	out.Success(fmt.Sprintf("Default preset: %s", p.Name), map[string]interface{}{
		"success":    true,
		"default_id": p.ID,
		"name":       p.Name,
	})
}

// findPreset resolves an identifier as a preset id first, then as a name.
func findPreset(store *config.Store, identifier string) *config.CommandPreset {
	if p := store.Preset(identifier); p != nil {
		return p
	}
	return store.PresetByName(identifier)
}
