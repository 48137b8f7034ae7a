package config

import (
	"errors"
	"fmt"
	"strings"

	"c4pairs/internal/diag"
	"c4pairs/internal/pipeline"
	"c4pairs/pkg/registry"
)

// Validate 对组件选择与运行参数做静态校验（不检查分片，见 ValidateShards）。
func Validate(cfg Config) error {
	if cfg.Concurrency < 1 {
		return errors.New("config: concurrency must be >= 1")
	}
	if cfg.NumShards < 0 {
		return errors.New("config: num_shards must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown logging.level %q", cfg.Logging.Level)
	}
	d := Defaults().Components
	if name := effName(cfg.Components.Reader, d.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.Index, d.Index); registry.Index[name] == nil {
		return fmt.Errorf("config: index %q not registered", name)
	}
	if name := effName(cfg.Components.Applicator, d.Applicator); registry.Applicator[name] == nil {
		return fmt.Errorf("config: applicator %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	if name := effName(cfg.Components.Corpus, d.Corpus); registry.Corpus[name] == nil {
		return fmt.Errorf("config: corpus %q not registered", name)
	}
	return nil
}

// ValidateShards 要求至少一个完整的分片条目。
func ValidateShards(cfg Config) error {
	if len(cfg.Shards) == 0 {
		return errors.New("config: shards empty")
	}
	for i, s := range cfg.Shards {
		if strings.TrimSpace(s.Sentences) == "" || strings.TrimSpace(s.Edits) == "" || strings.TrimSpace(s.Output) == "" {
			return fmt.Errorf("config: shards[%d] needs sentences, edits and output", i)
		}
	}
	return nil
}

// Shards 按 NumShards 展开全部分片条目。
func Shards(cfg Config) ([]pipeline.Shard, error) {
	if err := ValidateShards(cfg); err != nil {
		return nil, err
	}
	var out []pipeline.Shard
	for _, s := range cfg.Shards {
		ex, err := pipeline.ExpandShards(pipeline.Shard{Sentences: s.Sentences, Edits: s.Edits, Output: s.Output}, cfg.NumShards)
		if err != nil {
			return nil, err
		}
		out = append(out, ex...)
	}
	return out, nil
}

// Assemble 构造分片流水线组件。严格 Options 解析在 registry（工厂）层进行。
func Assemble(cfg Config) (pipeline.Components, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, err
	}
	d := Defaults().Components
	r, err := registry.Reader[effName(cfg.Components.Reader, d.Reader)](cfg.Options.Reader)
	if err != nil {
		return pipeline.Components{}, fmt.Errorf("reader options: %w", err)
	}
	open, err := registry.Index[effName(cfg.Components.Index, d.Index)](cfg.Options.Index)
	if err != nil {
		return pipeline.Components{}, fmt.Errorf("index options: %w", err)
	}
	app, err := registry.Applicator[effName(cfg.Components.Applicator, d.Applicator)](cfg.Options.Applicator)
	if err != nil {
		return pipeline.Components{}, fmt.Errorf("applicator options: %w", err)
	}
	w, err := registry.Writer[effName(cfg.Components.Writer, d.Writer)](cfg.Options.Writer)
	if err != nil {
		return pipeline.Components{}, fmt.Errorf("writer options: %w", err)
	}
	return pipeline.Components{Reader: r, NewIndex: open, Applicator: app, Writer: w}, nil
}

// AssembleTargets 构造语料查询所需组件。
func AssembleTargets(cfg Config) (pipeline.TargetComponents, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.TargetComponents{}, err
	}
	d := Defaults().Components
	r, err := registry.Reader[effName(cfg.Components.Reader, d.Reader)](cfg.Options.Reader)
	if err != nil {
		return pipeline.TargetComponents{}, fmt.Errorf("reader options: %w", err)
	}
	c, err := registry.Corpus[effName(cfg.Components.Corpus, d.Corpus)](cfg.Options.Corpus)
	if err != nil {
		return pipeline.TargetComponents{}, fmt.Errorf("corpus options: %w", err)
	}
	w, err := registry.Writer[effName(cfg.Components.Writer, d.Writer)](cfg.Options.Writer)
	if err != nil {
		return pipeline.TargetComponents{}, fmt.Errorf("writer options: %w", err)
	}
	return pipeline.TargetComponents{Reader: r, Corpus: c, Writer: w}, nil
}

// Effective 生效配置的摘要（debug 日志用）。
func Effective(cfg Config) map[string]string {
	d := Defaults().Components
	return map[string]string{
		"shards":      fmt.Sprint(len(cfg.Shards)),
		"num_shards":  fmt.Sprint(cfg.NumShards),
		"concurrency": fmt.Sprint(cfg.Concurrency),
		"level":       diag.ParseLevel(cfg.Logging.Level).String(),
		"reader":      effName(cfg.Components.Reader, d.Reader),
		"index":       effName(cfg.Components.Index, d.Index),
		"applicator":  effName(cfg.Components.Applicator, d.Applicator),
		"writer":      effName(cfg.Components.Writer, d.Writer),
		"corpus":      effName(cfg.Components.Corpus, d.Corpus),
	}
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
