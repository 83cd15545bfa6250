// Command aibench plays the targeting AI against random fleets and prints
// how many shots each difficulty needs to sink everything.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pefman/seabattle/internal/ai"
	"github.com/pefman/seabattle/internal/engine"
	"github.com/pefman/seabattle/internal/game"
)

type result struct {
	difficulty ai.Difficulty
	shots      []int
	elapsed    time.Duration
}

func (r result) summary() (min, max int, mean, median float64) {
	s := append([]int(nil), r.shots...)
	sort.Ints(s)
	sum := 0
	for _, v := range s {
		sum += v
	}
	mean = float64(sum) / float64(len(s))
	if n := len(s); n%2 == 1 {
		median = float64(s[n/2])
	} else {
		median = float64(s[n/2-1]+s[n/2]) / 2
	}
	return s[0], s[len(s)-1], mean, median
}

// playOne fires until the fleet is gone and returns the shot count.
func playOne(ctx context.Context, opp *ai.Opponent, board game.Board, limit int) (int, error) {
	opp.Reset()
	for shots := 1; shots <= limit; shots++ {
		c, err := opp.Move(ctx, nil)
		if err != nil {
			return 0, err
		}
		if board.IsShot(c.Row, c.Col) {
			return 0, errors.Errorf("%s fired twice at %d,%d", opp.Difficulty(), c.Row, c.Col)
		}
		res := board.MakeShot(c.Row, c.Col)
		opp.ProcessShotResult(c.Row, c.Col, res.Hit, res.Sunk)
		if board.IsGameOver() {
			return shots, nil
		}
	}
	return 0, errors.Errorf("%s did not finish within %d shots", opp.Difficulty(), limit)
}

func bench(ctx context.Context, d ai.Difficulty, games int, seed int64, think bool, log zerolog.Logger) (result, error) {
	rng := engine.NewSeededRNG(seed)
	var opts []ai.OpponentOption
	if !think {
		opts = append(opts, ai.WithoutThinking())
	}
	opp, err := ai.NewOpponent(d, rng, opts...)
	if err != nil {
		return result{}, err
	}
	res := result{difficulty: d}
	start := time.Now()
	for i := 0; i < games; i++ {
		n, err := playOne(ctx, opp, game.GenerateRandomBoard(rng), game.Size*game.Size)
		if err != nil {
			return res, err
		}
		res.shots = append(res.shots, n)
		log.Debug().Str("difficulty", string(d)).Int("game", i+1).Int("shots", n).Msg("game done")
	}
	res.elapsed = time.Since(start)
	return res, nil
}

func main() {
	var (
		games      = flag.Int("games", 500, "games per difficulty")
		difficulty = flag.String("difficulty", "all", "easy, medium, hard or all")
		seed       = flag.Int64("seed", 1, "random seed")
		think      = flag.Bool("think", false, "honour the AI think delays (slow)")
		verbose    = flag.Bool("v", false, "log every game")
	)
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	var levels []ai.Difficulty
	if *difficulty == "all" {
		levels = []ai.Difficulty{ai.Easy, ai.Medium, ai.Hard}
	} else {
		for _, s := range strings.Split(*difficulty, ",") {
			d, err := ai.ParseDifficulty(s)
			if err != nil {
				log.Fatal().Err(err).Msg("bad -difficulty")
			}
			levels = append(levels, d)
		}
	}
	if *games <= 0 {
		log.Fatal().Int("games", *games).Msg("-games must be positive")
	}

	results := make([]result, len(levels))
	g, ctx := errgroup.WithContext(context.Background())
	for i, d := range levels {
		g.Go(func() error {
			r, err := bench(ctx, d, *games, *seed+int64(i), *think, log)
			results[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("bench failed")
	}

	fmt.Printf("%-8s %6s %5s %5s %7s %7s %10s\n", "level", "games", "min", "max", "mean", "median", "elapsed")
	for _, r := range results {
		lo, hi, mean, median := r.summary()
		fmt.Printf("%-8s %6d %5d %5d %7.2f %7.1f %10s\n", r.difficulty, len(r.shots), lo, hi, mean, median, r.elapsed.Round(time.Millisecond))
	}
}
