package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/spf13/cobra"

	"github.com/voxlate/voxlate/pkg/audio"
	"github.com/voxlate/voxlate/pkg/realtime"
	"github.com/voxlate/voxlate/pkg/relay"
	"github.com/voxlate/voxlate/pkg/translate"
)

var (
	talkTargetLang string
	talkSourceLang string
	talkRecord     string
	talkModel      string
	talkVoice      string
)

var (
	styleStatus = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	styleDebug  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleError  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

var talkCmd = &cobra.Command{
	Use:   "talk",
	Short: "Run a realtime voice session from the terminal",
	Long: `Talk holds a live translated conversation: your microphone is streamed to
the remote voice model, which answers in the target language. The model may
call back into the local translation tool for precise text translation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		audioCtx, err := audio.NewContext()
		if err != nil {
			return fmt.Errorf("init audio: %w", err)
		}
		defer audioCtx.Close()

		var sink audio.Sink = audio.Discard
		if talkRecord != "" {
			f, err := os.Create(talkRecord)
			if err != nil {
				return fmt.Errorf("create recording: %w", err)
			}
			defer f.Close()
			sink, err = audio.NewOggSink(f, 48000, 2)
			if err != nil {
				return fmt.Errorf("init recording: %w", err)
			}
		}

		signaler := &relay.Client{APIKey: cfg.APIKey}
		if cfg.BaseURL != "" {
			signaler.URL = strings.TrimSuffix(cfg.BaseURL, "/") + "/realtime"
		}

		model := talkModel
		if model == "" {
			model = cfg.Model
		}
		voice := talkVoice
		if voice == "" {
			voice = cfg.Voice
		}
		instructions := cfg.Instructions
		if instructions == "" {
			instructions = fmt.Sprintf(
				"You are a live interpreter. Listen to the user and answer with a spoken "+
					"translation into %s. Keep the tone and register of the original. "+
					"Use the translate_text tool when an exact written translation is needed.",
				talkTargetLang)
			if talkSourceLang != "" {
				instructions += fmt.Sprintf(" The user speaks %s.", talkSourceLang)
			}
		}

		session := realtime.New(realtime.Config{
			Transport:    &realtime.WebRTCTransport{Signaler: signaler},
			Audio:        audioCtx,
			Sink:         sink,
			Model:        model,
			Instructions: instructions,
			Voice:        voice,
			Tools:        realtime.NewRegistry(translateTool(cfg.APIKey, cfg.BaseURL)),
			Hooks: realtime.Hooks{
				OnDebug: func(msg string) {
					if verbose {
						fmt.Println(styleDebug.Render("· " + msg))
					}
				},
				OnError: func(err error) {
					fmt.Println(styleError.Render("✗ " + err.Error()))
				},
				OnRecordingStarted: func() {
					fmt.Println(styleStatus.Render("● recording — speak now (ctrl-c to stop)"))
				},
				OnRecordingStopped: func() {
					fmt.Println(styleStatus.Render("■ stopped"))
				},
			},
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := session.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		session.Stop()
		return nil
	},
}

// translateTool exposes exact text translation to the voice model.
func translateTool(apiKey, baseURL string) *realtime.Tool {
	var opts []translate.Option
	if baseURL != "" {
		opts = append(opts, translate.WithBaseURL(baseURL))
	}
	translator := translate.NewTranslator(apiKey, opts...)

	return &realtime.Tool{
		Name:        "translate_text",
		Description: "Translate a piece of text into a target language and return the exact written translation.",
		Parameters: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"text":        {Type: "string", Description: "The text to translate."},
				"target_lang": {Type: "string", Description: "The language to translate into."},
				"source_lang": {Type: "string", Description: "The source language, if known."},
			},
			Required: []string{"text", "target_lang"},
		},
		Run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			text, _ := args["text"].(string)
			targetLang, _ := args["target_lang"].(string)
			sourceLang, _ := args["source_lang"].(string)
			if targetLang == "" {
				targetLang = talkTargetLang
			}
			out, err := translator.Translate(ctx, text, sourceLang, targetLang)
			if err != nil {
				return nil, err
			}
			return map[string]any{"translation": out}, nil
		},
	}
}

func init() {
	talkCmd.Flags().StringVar(&talkTargetLang, "target-lang", "English", "language the session translates into")
	talkCmd.Flags().StringVar(&talkSourceLang, "source-lang", "", "source language hint")
	talkCmd.Flags().StringVar(&talkRecord, "record", "", "write remote audio to an Ogg/Opus file")
	talkCmd.Flags().StringVar(&talkModel, "model", "", "realtime model (overrides config)")
	talkCmd.Flags().StringVar(&talkVoice, "voice", "", "remote voice (overrides config)")
	rootCmd.AddCommand(talkCmd)
}
