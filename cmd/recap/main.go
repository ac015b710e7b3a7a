package main

import (
	"bufio"
	"fmt"
	"image"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lanternops/recap/internal/capture"
	"github.com/lanternops/recap/internal/config"
	"github.com/lanternops/recap/internal/logging"
	"github.com/lanternops/recap/internal/mixer"
	"github.com/lanternops/recap/internal/preview"
	"github.com/lanternops/recap/internal/record"
	"github.com/lanternops/recap/internal/sink"
)

var (
	version    = "0.1.0"
	cfgFile    string
	outputDir  string
	modeFlag   string
	regionFlag string
	noAudio    bool
	autoRecord bool
)

var rootCmd = &cobra.Command{
	Use:   "recap",
	Short: "Recap screen recorder",
	Long:  `Recap - screen and audio recorder with live preview for Windows, macOS, and Linux`,
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Start an interactive recording session",
	Run: func(cmd *cobra.Command, args []string) {
		runRecorder()
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available audio capture devices",
	Run: func(cmd *cobra.Command, args []string) {
		listDevices()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Recap v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is the per-user recap.yaml)")

	recordCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "directory for recording files")
	recordCmd.Flags().StringVarP(&modeFlag, "mode", "m", "", "capture mode: screen, region, or window")
	recordCmd.Flags().StringVar(&regionFlag, "region", "", "fixed region as x0,y0,x1,y1 (implies --mode region)")
	recordCmd.Flags().BoolVar(&noAudio, "no-audio", false, "record video only")
	recordCmd.Flags().BoolVar(&autoRecord, "start", false, "start recording immediately")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runRecorder() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}

	initLogging(cfg)
	log := logging.L("main")
	for _, warn := range cfg.Validate() {
		log.Warn("config", "warning", warn.Error())
	}

	mode, err := record.ParseMode(modeFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var fixedRegion image.Rectangle
	if regionFlag != "" {
		fixedRegion, err = parseRegion(regionFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --region: %v\n", err)
			os.Exit(1)
		}
		mode = record.ModeRegion
	}

	capturer, err := capture.NewScreenCapturer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Screen capture unavailable: %v\n", err)
		os.Exit(1)
	}

	opts := record.Options{
		Config:   cfg,
		Capturer: capturer,
		Windows:  newWindowProvider(),
		NewSink:  func() sink.EncodeSink { return sink.NewFFmpegSink() },
		Notifier: record.Notifier{
			OnWindowRequest: func() {
				fmt.Println("Hover the target window and press 'w' to select it.")
			},
			OnStateChange: func(st record.State) {
				log.Info("state", "state", st.String())
			},
			OnError: func(err error) {
				fmt.Fprintf(os.Stderr, "Device failure, recording stopped: %v\n", err)
			},
		},
	}
	if !noAudio {
		opts.NewMixer = func() (record.AudioMixer, error) {
			devs, err := mixer.OpenDevices(cfg.AudioDevices, cfg.SampleRate)
			if err != nil {
				return nil, err
			}
			return mixer.New(mixer.Config{
				SampleRate: cfg.SampleRate,
				FrameSize:  1024,
			}, devs...)
		}
	}

	session, err := record.NewSession(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create session: %v\n", err)
		os.Exit(1)
	}
	defer session.Close()
	session.SetMode(mode)
	if mode == record.ModeRegion && !fixedRegion.Empty() {
		if err := session.SetFixedRegion(fixedRegion); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	var previewSrv *preview.Server
	if cfg.PreviewAddr != "" {
		previewSrv = preview.NewServer(preview.Config{Addr: cfg.PreviewAddr}, func() any {
			return map[string]any{
				"state":   session.State().String(),
				"mode":    session.Mode().String(),
				"metrics": session.Metrics().Snapshot(),
			}
		})
		addr, err := previewSrv.Start()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Preview server failed: %v\n", err)
			os.Exit(1)
		}
		defer previewSrv.Stop()
		session.SetPreviewTap(previewSrv.Push)
		fmt.Printf("Preview: ws://%s/stream\n", addr)
	}

	fmt.Printf("Recap v%s  (mode: %s, output: %s)\n", version, mode, cfg.OutputDir)

	if err := session.StartPlaying(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start capture: %v\n", err)
		os.Exit(1)
	}
	if autoRecord {
		if err := session.StartRecording(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to start recording: %v\n", err)
		}
	}

	fmt.Println("Commands: r = start/stop recording, p = pause/resume, w = select window, q = quit")
	runControlLoop(session)

	fmt.Println("\nShutting down...")
	session.Close()
	if session.HasRecorded() {
		fmt.Printf("Last recording: %s\n", session.OutputPath())
	}
}

// runControlLoop reads single-letter commands from stdin until 'q' or an
// interrupt signal.
func runControlLoop(session *record.Session) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	for {
		select {
		case <-sigChan:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch line {
			case "r":
				if session.IsRecording() {
					session.StopRecording()
					fmt.Printf("Saved %s\n", session.OutputPath())
				} else {
					if err := session.StartRecording(); err != nil {
						fmt.Fprintf(os.Stderr, "Recording failed: %v\n", err)
					} else if session.IsRecording() {
						fmt.Printf("Recording to %s\n", session.OutputPath())
					}
				}
			case "p":
				switch session.State() {
				case record.StatePlaying:
					if err := session.PausePlaying(); err != nil {
						fmt.Fprintln(os.Stderr, err)
					}
				case record.StateIdle:
					if err := session.StartPlaying(); err != nil {
						fmt.Fprintln(os.Stderr, err)
					}
				default:
					fmt.Fprintln(os.Stderr, "Cannot pause while recording; press 'r' to stop first.")
				}
			case "w":
				if err := session.SelectWindowUnderCursor(); err != nil {
					fmt.Fprintf(os.Stderr, "Window selection failed: %v\n", err)
				}
			case "q":
				return
			case "":
			default:
				fmt.Fprintf(os.Stderr, "Unknown command %q\n", line)
			}
		}
	}
}

func listDevices() {
	if capturer, err := capture.NewScreenCapturer(); err != nil {
		fmt.Printf("Display: unavailable (%v)\n", err)
	} else {
		if b, err := capturer.Bounds(); err == nil {
			fmt.Printf("Display: %dx%d\n", b.Dx(), b.Dy())
		}
		_ = capturer.Close()
	}

	devices, err := mixer.ListDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to enumerate audio devices: %v\n", err)
		os.Exit(1)
	}
	if len(devices) == 0 {
		fmt.Println("No audio capture devices found.")
		return
	}
	fmt.Println("Audio capture devices (* = default):")
	for _, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, d.Name)
	}
}

// newWindowProvider returns nil when the platform has no window tracking;
// the session then falls back to full-screen capture in window mode.
func newWindowProvider() capture.WindowProvider {
	wp, err := capture.NewWindowProvider()
	if err != nil {
		logging.L("main").Warn("window tracking unavailable", "error", err)
		return nil
	}
	return wp
}

func initLogging(cfg *config.Config) {
	var out = os.Stderr
	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, 10, 3)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Log file unavailable, logging to stderr: %v\n", err)
		} else {
			logging.Init(cfg.LogFormat, cfg.LogLevel, logging.TeeWriter(os.Stderr, rw))
			return
		}
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, out)
}

// parseRegion parses "x0,y0,x1,y1" into a rectangle.
func parseRegion(s string) (image.Rectangle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("want 4 comma-separated integers, got %d", len(parts))
	}
	vals := make([]int, 4)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("bad coordinate %q", p)
		}
		vals[i] = v
	}
	r := image.Rect(vals[0], vals[1], vals[2], vals[3])
	if r.Empty() {
		return image.Rectangle{}, fmt.Errorf("region %v is empty", r)
	}
	return r, nil
}
