package app

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"horse.fit/mtgate/internal/cli"
	"horse.fit/mtgate/internal/locale"
	"horse.fit/mtgate/internal/translation"
)

type languagesOutput struct {
	LanguagePairs []locale.Pair                `json:"languagePairs"`
	Locales       []translation.LanguageOption `json:"locales"`
}

func runLanguages(args []string) int {
	fs := flag.NewFlagSet("languages", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	cfg, _, err := loadRuntime(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	out := languagesOutput{
		LanguagePairs: cfg.Pairs(),
		Locales:       translation.LanguageOptions(),
	}
	if outputFormat == outputFormatJSON {
		if err := printJSON(out); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(out.LanguagePairs))
	for _, pair := range out.LanguagePairs {
		rows = append(rows, []string{pair.Source.String(), pair.Target.String()})
	}
	if err := writeTable([]string{"SOURCE", "TARGET"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write table: %v\n", err)
		return 1
	}
	return 0
}
