// Package setup provides a terminal wizard that writes the console's yaml
// configuration.
package setup

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"mmconsole/internal/domain"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

type wizardConfig struct {
	Mode      string   `yaml:"mode"`
	APIURL    string   `yaml:"api_url"`
	StreamURL string   `yaml:"stream_url"`
	Symbols   []string `yaml:"symbols,omitempty"`
}

// RunTUI launches the terminal configuration wizard and writes
// config.gen.yaml. The offered symbol list should come from the catalog,
// with the built-in fallback when the server is unreachable.
func RunTUI(catalog []string) error {
	var (
		mode      string
		apiURL    string
		streamURL string
		symbols   []string
		confirm   bool
	)

	apiURL = "http://localhost:8080"
	streamURL = "ws://localhost:8080/ws"

	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("MM CONSOLE SETUP"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Point the console at a metrics server.\n"))

	fmt.Println(stepStyle.Render("STEP 1: VARIANT"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Choose the backend variant").
				Options(
					huh.NewOption("Simulation (1s status poll)", string(domain.ModeSimulation)),
					huh.NewOption("Live execution (2s status poll)", string(domain.ModeLive)),
				).
				Value(&mode),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("MM CONSOLE SETUP"))
	fmt.Println(stepStyle.Render("STEP 2: ENDPOINTS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Control API base URL").
				Value(&apiURL).
				Validate(validateHTTPURL),
			huh.NewInput().
				Title("Metrics stream URL").
				Description("ws:// or wss://").
				Value(&streamURL).
				Validate(validateWSURL),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("MM CONSOLE SETUP"))
	fmt.Println(stepStyle.Render("STEP 3: SYMBOLS"))
	options := make([]huh.Option[string], 0, len(catalog))
	for _, sym := range catalog {
		options = append(options, huh.NewOption(sym, sym))
	}
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Preselect symbols to stream").
				Options(options...).
				Value(&symbols),
		),
	).Run()
	if err != nil {
		return err
	}

	// confirmation
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("MM CONSOLE SETUP"))
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))

	summary := fmt.Sprintf(
		"Variant: %s\nControl API: %s\nStream: %s\nSymbols: %s\n",
		mode, apiURL, streamURL, strings.Join(symbols, ", "),
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}

	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	filename := "config.gen.yaml"
	if err := saveConfig(filename, wizardConfig{
		Mode:      mode,
		APIURL:    apiURL,
		StreamURL: streamURL,
		Symbols:   symbols,
	}); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(
		fmt.Sprintf("\nConfiguration saved to %s\nRun: console --config %s", filename, filename)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

// saveConfig writes the wizard's answers in the yaml shape the config
// loader reads back.
func saveConfig(filename string, cfg wizardConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

func validateHTTPURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("must be an http(s) URL")
	}
	return nil
}

func validateWSURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("must be a ws(s) URL")
	}
	return nil
}
