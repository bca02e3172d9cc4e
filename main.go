// whisper-dictate: hold a hotkey, speak, release, and the transcript is
// pasted at the cursor. Transcription goes to a cloud endpoint with a
// supervised local whisper-server (and whisper-cli) as fallback.
//
// Modes:
//   - record (default): global hotkey daemon
//   - file: transcribe an existing audio file (-file, optional -o)
//
// Config comes from ./config.json (or -config), with every field
// overridable by a flag. With no config and no flags a default
// config.json is generated and the program exits so it can be edited.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mortalcornflake/whisper-dictate/internal/app"
	"github.com/mortalcornflake/whisper-dictate/internal/config"
)

func usage() {
	prog := os.Args[0]
	fmt.Fprintf(os.Stderr, `Usage: %s [options]

Hold-to-dictate speech-to-text. Hold the hotkey to record, release to
transcribe and paste at the cursor.

Modes:
  (default)        run the hotkey daemon
  -file <path>     transcribe an existing audio file and exit
  -o <path>        output text file for -file mode (default: <input>.txt)

Config:
  -config <path>   config JSON (default ./config.json; generated with
                   defaults on first run when no flags are given)

All config fields can be overridden per run, e.g.:
  %s -backend local -server-model models/ggml-base.en.bin
  %s -file meeting.ogg -o meeting.txt

Options:
`, prog, prog, prog)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage

	var (
		configPath string
		filePath   string
		outPath    string
	)
	flag.StringVar(&configPath, "config", "", "path to config JSON")
	flag.StringVar(&filePath, "file", "", "audio file to transcribe (skips recording)")
	flag.StringVar(&outPath, "o", "", "output text path for -file mode")
	fv := config.RegisterFlags(flag.CommandLine)
	flag.Parse()

	// Config resolution:
	// - explicit -config must load or we exit,
	// - else ./config.json is used when present,
	// - else with no flags at all a default config.json is written so the
	//   user has something to edit.
	var cfg config.Config
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Printf("[main] failed to load config '%s': %v\n", configPath, err)
			os.Exit(1)
		}
		cfg = loaded
	} else if _, err := os.Stat("config.json"); err == nil {
		loaded, err := config.Load("config.json")
		if err != nil {
			fmt.Printf("[main] failed to load existing config.json: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	} else if os.IsNotExist(err) {
		if flag.NFlag() == 0 {
			if err := config.SaveDefault("config.json"); err != nil {
				fmt.Printf("[main] failed to write default config.json: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("[main] wrote default config.json; edit it and run again")
			return
		}
		cfg = config.DefaultConfig()
	} else {
		fmt.Printf("[main] failed to stat config.json: %v\n", err)
		os.Exit(1)
	}

	fv.Apply(&cfg)

	if err := config.Validate(&cfg); err != nil {
		fmt.Printf("[main] invalid config: %v\n", err)
		os.Exit(1)
	}
	config.InitCacheDir(&cfg)

	if filePath != "" {
		if err := app.RunFileMode(cfg, filePath, outPath); err != nil {
			fmt.Printf("[main] %v\n", err)
			os.Exit(2)
		}
		return
	}

	if err := app.RunRecordMode(cfg); err != nil {
		fmt.Printf("[main] %v\n", err)
		os.Exit(2)
	}
}
