// Tool to generate fake community traffic against a running wardend.
// Intended for development and benchmarking.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/chatwarden/warden/engine"
	"github.com/chatwarden/warden/util"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "warden-sim",
		Usage:   "fake community traffic generator for wardend",
		Version: versioninfo.Short(),
	}

	app.Commands = []*cli.Command{
		runCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "send a stream of synthetic chat events",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Usage:   "method, hostname, and port of wardend instance",
			Value:   "http://localhost:2470",
			EnvVars: []string{"WARDEN_SIM_HOST"},
		},
		&cli.IntFlag{
			Name:  "events",
			Usage: "total number of events to send",
			Value: 1000,
		},
		&cli.IntFlag{
			Name:    "jobs",
			Aliases: []string{"j"},
			Usage:   "number of parallel senders",
			Value:   runtime.NumCPU(),
		},
		&cli.IntFlag{
			Name:  "communities",
			Usage: "number of distinct communities to spread events across",
			Value: 3,
		},
		&cli.IntFlag{
			Name:  "members",
			Usage: "number of distinct members per community",
			Value: 200,
		},
		&cli.Float64Flag{
			Name:  "violation-rate",
			Usage: "fraction of messages carrying spam or scam text",
			Value: 0.05,
		},
		&cli.Float64Flag{
			Name:  "join-rate",
			Usage: "fraction of events that are joins",
			Value: 0.05,
		},
		&cli.Float64Flag{
			Name:  "leave-rate",
			Usage: "fraction of events that are leaves",
			Value: 0.02,
		},
		&cli.Float64Flag{
			Name:  "reaction-rate",
			Usage: "fraction of events that are reactions",
			Value: 0.20,
		},
		&cli.Int64Flag{
			Name:  "seed",
			Usage: "RNG seed for a reproducible event stream; random when zero",
		},
	},
	Action: runSim,
}

type simConfig struct {
	communities   int
	members       int
	violationRate float64
	joinRate      float64
	leaveRate     float64
	reactionRate  float64
}

type simEvent struct {
	path string
	body any
}

// violationTexts all trip the default keyword rule sets in wardend.
var violationTexts = []string{
	"buy now before the limited time offer runs out",
	"click here for free money and guaranteed income",
	"wallet connect to claim your airdrop claim today",
	"verify your wallet and double your holdings",
	"join us at t.me/+freestuff123 for giveaways",
	"make money fast, act now",
}

func runSim(cctx *cli.Context) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	host := cctx.String("host")
	total := cctx.Int("events")
	jobs := cctx.Int("jobs")
	cfg := simConfig{
		communities:   cctx.Int("communities"),
		members:       cctx.Int("members"),
		violationRate: cctx.Float64("violation-rate"),
		joinRate:      cctx.Float64("join-rate"),
		leaveRate:     cctx.Float64("leave-rate"),
		reactionRate:  cctx.Float64("reaction-rate"),
	}
	if cfg.communities < 1 || cfg.members < 1 {
		return fmt.Errorf("need at least one community and one member")
	}

	seed := cctx.Int64("seed")
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	faker := gofakeit.New(seed)

	logger.Info("starting simulation", "host", host, "events", total, "jobs", jobs, "seed", seed)

	client := util.RobustHTTPClient()
	var sent, failed, actionsSeen atomic.Int64

	evChan := make(chan *simEvent, jobs*4)
	eg := new(errgroup.Group)
	for i := 0; i < jobs; i++ {
		eg.Go(func() error {
			for ev := range evChan {
				count, err := postEvent(client, host, ev)
				if err != nil {
					failed.Add(1)
					logger.Warn("event delivery failed", "path", ev.path, "err", err)
					continue
				}
				sent.Add(1)
				actionsSeen.Add(count)
			}
			return nil
		})
	}

	start := time.Now()
	for i := 0; i < total; i++ {
		evChan <- nextEvent(rng, faker, &cfg, i)
	}
	close(evChan)
	if err := eg.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	rate := float64(sent.Load()) / elapsed.Seconds()
	logger.Info("simulation complete",
		"sent", sent.Load(),
		"failed", failed.Load(),
		"actions", actionsSeen.Load(),
		"duration", elapsed.Round(time.Millisecond).String(),
		"eventsPerSec", fmt.Sprintf("%.1f", rate),
	)
	return nil
}

func nextEvent(rng *rand.Rand, faker *gofakeit.Faker, cfg *simConfig, seq int) *simEvent {
	community := fmt.Sprintf("sim-%d", rng.Intn(cfg.communities))
	member := fmt.Sprintf("member-%04d", rng.Intn(cfg.members))
	now := time.Now()

	roll := rng.Float64()
	switch {
	case roll < cfg.joinRate:
		return &simEvent{
			path: "/event/join",
			body: engine.JoinEvent{CommunityID: community, MemberID: member, Time: now},
		}
	case roll < cfg.joinRate+cfg.leaveRate:
		return &simEvent{
			path: "/event/leave",
			body: engine.LeaveEvent{CommunityID: community, MemberID: member, Time: now},
		}
	case roll < cfg.joinRate+cfg.leaveRate+cfg.reactionRate:
		return &simEvent{
			path: "/event/reaction",
			body: engine.ReactionEvent{
				CommunityID: community,
				MemberID:    member,
				MessageID:   fmt.Sprintf("sim-msg-%08d", rng.Intn(seq+1)),
				Time:        now,
			},
		}
	default:
		text := faker.Sentence(6 + rng.Intn(10))
		if rng.Float64() < cfg.violationRate {
			text = violationTexts[rng.Intn(len(violationTexts))]
		}
		return &simEvent{
			path: "/event/message",
			body: engine.MessageEvent{
				CommunityID: community,
				MemberID:    member,
				MessageID:   fmt.Sprintf("sim-msg-%08d", seq),
				Text:        text,
				Time:        now,
			},
		}
	}
}

func postEvent(client *http.Client, host string, ev *simEvent) (int64, error) {
	b, err := json.Marshal(ev.body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequest(http.MethodPost, host+ev.path, bytes.NewReader(b))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("wardend returned status %d", resp.StatusCode)
	}
	var out struct {
		Actions []engine.Action `json:"actions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return int64(len(out.Actions)), nil
}
