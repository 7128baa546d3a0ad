package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/units"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/vbaunlock"
)

var (
	app = kingpin.New("vbaunlock",
		"Inspect and remove VBA project protection in Excel files.")

	config_path = app.Flag("config", "TOML config file").String()
	max_size    = app.Flag("max_size", "Refuse files larger than this").
			Bytes()
	debug = app.Flag("debug", "Enable debug logging").Bool()

	read_cmd  = app.Command("read", "Read the protection of the VBA project")
	read_file = read_cmd.Arg("file", "Excel file to read").
			Required().String()
	read_decode = read_cmd.Flag("decode",
		"Attempt to recover a hashed password").Short('d').Bool()
	read_json     = read_cmd.Flag("json", "Emit the full project as JSON").Bool()
	read_wordlist = read_cmd.Flag("wordlist",
		"Password list used by --decode").String()

	remove_cmd  = app.Command("remove", "Remove all protection from the VBA project")
	remove_file = remove_cmd.Arg("file", "Excel file to unlock").
			Required().String()
	remove_inplace = remove_cmd.Flag("inplace",
		"Modify the file in place instead of writing a copy").Short('i').Bool()
)

// resolveSettings merges defaults, the config file and the command line
// in increasing order of precedence.
func resolveSettings() (settings, error) {
	cfg := defaultSettings()

	if *config_path != "" {
		var err error
		cfg, err = loadSettings(*config_path, cfg)
		if err != nil {
			return settings{}, err
		}
	}

	if *max_size != 0 {
		cfg.Options.MaxSize = int64(*max_size)
	}

	if *read_wordlist != "" {
		cfg.Wordlist = *read_wordlist
	}

	if *debug {
		cfg.LogLevel = "debug"
	}

	return cfg, nil
}

func openWordlist(path string) (io.ReadCloser, error) {
	if path == "" {
		return io.NopCloser(vbaunlock.DefaultWordlist()), nil
	}
	return os.Open(path)
}

func crack(project *vbaunlock.Project, cfg settings) (string, bool, error) {
	wordlist, err := openWordlist(cfg.Wordlist)
	if err != nil {
		return "", false, err
	}
	defer wordlist.Close()

	return vbaunlock.CrackProject(project, wordlist)
}

func doRead(cfg settings) error {
	project, err := vbaunlock.ReadProjectFile(*read_file, cfg.Options)
	if err != nil {
		return err
	}

	var decoded *string
	_, hashed := project.Password().(vbaunlock.PasswordHash)
	if *read_decode && hashed {
		password, ok, err := crack(project, cfg)
		if err != nil {
			return err
		}
		if ok {
			decoded = &password
		} else {
			decoded = new(string)
		}
	}

	if *read_json {
		report := project.Report()
		if decoded != nil {
			report.Set("DecodedPassword", *decoded)
		}

		serialized, err := json.MarshalIndent(report, " ", " ")
		kingpin.FatalIfError(err, "JSON")

		fmt.Println(string(serialized))
		return nil
	}

	printInfo(os.Stdout, project, decoded)
	return nil
}

// printInfo writes the protection records. decoded is nil when no
// recovery was attempted and empty when it failed.
func printInfo(out io.Writer, project *vbaunlock.Project, decoded *string) {
	state := project.ProtectionState()
	fmt.Fprintf(out, "Project Protection State:\n")
	fmt.Fprintf(out, "  User Protected: %v\n", state.User)
	fmt.Fprintf(out, "  Host Protected: %v\n", state.Host)
	fmt.Fprintf(out, "  VBE Protected: %v\n", state.Vbe)

	fmt.Fprintf(out, "Project Password: ")
	switch password := project.Password().(type) {
	case vbaunlock.PasswordHash:
		fmt.Fprintf(out, "Hashed (SHA1)\n")
		fmt.Fprintf(out, "  Salt: %x\n", password.Salt[:])
		fmt.Fprintf(out, "  SHA1 Hash: %x\n", password.Hash[:])
		if decoded != nil {
			if *decoded == "" {
				fmt.Fprintf(out, "  Was unable to decode the password. "+
					"Try removing the password, which always works\n")
			} else {
				fmt.Fprintf(out, "  Decoded Password: %v\n", *decoded)
			}
		}
	default:
		fmt.Fprintf(out, "%v\n", password)
	}

	fmt.Fprintf(out, "Project Visibility:\n")
	fmt.Fprintf(out, "  %v\n", project.Visibility())
}

func doRemove(cfg settings) error {
	output, err := vbaunlock.RemoveProtection(
		*remove_file, *remove_inplace, cfg.Options)
	if err != nil {
		return err
	}

	fmt.Printf("Wrote %v\n", output)
	return nil
}

func main() {
	app.HelpFlag.Short('h')
	app.UsageTemplate(kingpin.CompactUsageTemplate).DefaultEnvars()
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := resolveSettings()
	kingpin.FatalIfError(err, "Config")

	err = vbaunlock.ConfigureLogging(os.Stderr, cfg.LogLevel)
	kingpin.FatalIfError(err, "Logging")

	vbaunlock.Logger().Debug().
		Str("max_size", units.Base2Bytes(cfg.Options.MaxSize).String()).
		Str("command", command).Msg("Starting")

	switch command {
	case read_cmd.FullCommand():
		err = doRead(cfg)
		kingpin.FatalIfError(err, "Reading")

	case remove_cmd.FullCommand():
		err = doRemove(cfg)
		kingpin.FatalIfError(err, "Removing")
	}
}
