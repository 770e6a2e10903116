package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/msto63/voicebridge/internal/stt"
	"github.com/msto63/voicebridge/internal/tts"
	"github.com/msto63/voicebridge/pkg/core/health"
	"github.com/msto63/voicebridge/pkg/core/version"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine availability and configuration",
	Long: `Probe the TTS engines and the STT backend and show what is available.

Examples:
  voicebridge status
  voicebridge status --json`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print status as JSON")
}

// statusReport is the combined status printed by the status command
type statusReport struct {
	Version  string         `json:"version"`
	TTS      *tts.Status    `json:"tts,omitempty"`
	TTSError string         `json:"tts_error,omitempty"`
	STT      *stt.Status    `json:"stt,omitempty"`
	STTError string         `json:"stt_error,omitempty"`
	Health   *health.Report `json:"health"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report := collectStatus(ctx)
	if statusJSON {
		return printJSON(report)
	}

	fmt.Println(renderStatus(report))
	return nil
}

func collectStatus(ctx context.Context) *statusReport {
	report := &statusReport{Version: version.Platform}

	if p, err := newTTS(ctx, appConfig, nil); err != nil {
		report.TTSError = err.Error()
	} else {
		report.TTS = p.Status(ctx)
	}

	if p, cleanup, err := newSTT(ctx, appConfig); err != nil {
		report.STTError = err.Error()
	} else {
		report.STT = p.Status()
		cleanup()
	}

	hist, _ := openHistory(appConfig.History)
	if hist != nil {
		defer hist.Close()
	}

	store, cacheErr := newCache(ctx, appConfig.Cache)
	if store != nil {
		defer store.Close()
	}
	registry := newHealthRegistry(appConfig, store, hist)
	if cacheErr != nil {
		registry.RegisterFunc("cache."+appConfig.Cache.Backend, func(ctx context.Context) health.CheckResult {
			return health.CheckResult{Status: health.StatusUnhealthy, Message: cacheErr.Error()}
		})
	}
	report.Health = registry.CheckWithTimeout(ctx, appConfig.TTS.ProbeTimeout.Duration)
	return report
}

func renderStatus(r *statusReport) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("voicebridge " + r.Version))
	b.WriteString("\n")

	// TTS
	var tb strings.Builder
	tb.WriteString(headerStyle.Render("Text-to-Speech") + "\n")
	if r.TTS == nil {
		tb.WriteString(row("status", errStyle.Render("unavailable")))
		tb.WriteString(row("error", r.TTSError))
	} else {
		tb.WriteString(row("status", okStyle.Render("available")))
		tb.WriteString(row("provider", r.TTS.Provider))
		tb.WriteString(row("voice", r.TTS.Voice))
		tb.WriteString(row("sample rate", fmt.Sprintf("%d Hz", r.TTS.SampleRate)))
		tb.WriteString(row("formats", strings.Join(r.TTS.SupportedFormats, ", ")))
		providers := make([]string, 0, len(r.TTS.Providers))
		for name := range r.TTS.Providers {
			providers = append(providers, name)
		}
		sort.Strings(providers)
		for _, name := range providers {
			tb.WriteString(row("  "+name, availability(r.TTS.Providers[name])))
		}
		tb.WriteString(row("  ffmpeg", availability(r.TTS.FFmpeg)))
	}
	b.WriteString(sectionStyle.Render(strings.TrimRight(tb.String(), "\n")))
	b.WriteString("\n")

	// STT
	var sb strings.Builder
	sb.WriteString(headerStyle.Render("Speech-to-Text") + "\n")
	if r.STT == nil {
		sb.WriteString(row("status", errStyle.Render("unavailable")))
		sb.WriteString(row("error", r.STTError))
	} else {
		sb.WriteString(row("status", okStyle.Render("available")))
		sb.WriteString(row("backend", r.STT.Backend))
		sb.WriteString(row("model", r.STT.ModelSize))
		sb.WriteString(row("device", r.STT.Device))
		sb.WriteString(row("cuda", availability(r.STT.CUDAAvailable)))
		sb.WriteString(row("default language", r.STT.DefaultLanguage))
		sb.WriteString(row("languages", strings.Join(r.STT.SupportedLanguages, ", ")))
	}
	b.WriteString(sectionStyle.Render(strings.TrimRight(sb.String(), "\n")))
	b.WriteString("\n")

	// Health
	var hb strings.Builder
	hb.WriteString(headerStyle.Render("Health: ") + healthStatus(r.Health.Status) + "\n")
	for _, c := range r.Health.Checks {
		hb.WriteString(row(c.Name, healthStatus(c.Status)+" "+c.Message))
	}
	b.WriteString(sectionStyle.Render(strings.TrimRight(hb.String(), "\n")))

	return b.String()
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value) + "\n"
}

func availability(ok bool) string {
	if ok {
		return okStyle.Render("yes")
	}
	return errStyle.Render("no")
}

func healthStatus(s health.Status) string {
	switch s {
	case health.StatusHealthy:
		return okStyle.Render(string(s))
	case health.StatusDegraded:
		return warnStyle.Render(string(s))
	default:
		return errStyle.Render(string(s))
	}
}
