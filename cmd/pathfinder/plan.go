package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/pathfinder/api/handlers"
	"github.com/BaSui01/pathfinder/planner"
)

// =============================================================================
// 🧭 plan 命令
// =============================================================================

func runPlan(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	stream := fs.Bool("stream", false, "Print progress events as JSON lines")
	user := fs.String("user", "", "Caller identity used for profile and calendar lookups")
	location := fs.String("location", "", "Override the search location")
	budget := fs.String("budget", "", "Override the budget tier (low, medium, high)")
	vibe := fs.String("vibe", "", "Override the vibe preference")
	groupSize := fs.Int("group-size", 0, "Override the group size")
	if err := fs.Parse(args); err != nil {
		return err
	}
	raw := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if raw == "" {
		return errors.New(`usage: pathfinder plan [options] "<request>"`)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	// 命令行模式下日志写到 stderr，stdout 只输出结果
	cfg.Log.OutputPaths = []string{"stderr"}
	logger, level := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	a, err := newApp(ctx, cfg, logger, level)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	req := planner.Request{RawRequest: raw, Identity: *user}
	req.Overrides = overridesFromFlags(*location, *budget, *vibe, *groupSize)

	logger.Debug("running plan", zap.String("request", raw), zap.Bool("stream", *stream))
	return executePlan(ctx, a.planService(), req, *stream, out)
}

// overridesFromFlags 只在至少一个参数非空时返回覆盖项
func overridesFromFlags(location, budget, vibe string, groupSize int) *planner.IntentOverrides {
	o := &planner.IntentOverrides{
		Location:       location,
		BudgetTier:     budget,
		VibePreference: vibe,
	}
	if groupSize > 0 {
		o.GroupSize = &groupSize
	}
	if o.Location == "" && o.BudgetTier == "" && o.VibePreference == "" && o.GroupSize == nil {
		return nil
	}
	return o
}

// executePlan 同步模式输出一个缩进的结果；流式模式每行一个事件
func executePlan(ctx context.Context, svc handlers.PlanService, req planner.Request, stream bool, out io.Writer) error {
	if !stream {
		res, err := svc.Plan(ctx, req)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	events, err := svc.Stream(ctx, req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	var failure error
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
		if ev.Type == planner.EventError {
			failure = fmt.Errorf("plan %s failed: %s", ev.PlanID, ev.Error)
		}
	}
	return failure
}
