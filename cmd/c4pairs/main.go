package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cfgpkg "c4pairs/internal/config"
	"c4pairs/internal/diag"
	"c4pairs/internal/pipeline"
	"c4pairs/pkg/contract"
)

// 退出码：0 成功；1 运行期失败；3 配置/用法错误。
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 3
)

// configError 标记应以 exitConfig 退出的错误。
type configError struct{ err error }

func (e configError) Error() string { return e.err.Error() }
func (e configError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// app 承载一次命令执行的 flag 与运行期对象。
type app struct {
	stdout, stderr io.Writer

	configPath  string
	logLevel    string
	concurrency int
	numShards   int
	index       string
	status      bool

	cfg    cfgpkg.Config
	corrID string
	logger *diag.Logger
	// logTo 非空时日志写入该 Writer 而非 logs/ 目录（测试用）。
	logTo io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	return a.execute(ctx, args)
}

func (a *app) execute(ctx context.Context, args []string) int {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	err := root.ExecuteContext(ctx)
	// PostRun 在 RunE 失败时不执行，统一在此关闭日志。
	_ = a.logger.Close()
	if err == nil {
		return exitOK
	}
	var ce configError
	if errors.As(err, &ce) {
		fmt.Fprintf(a.stderr, "配置错误: %v\n", err)
		return exitConfig
	}
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintf(a.stderr, "运行失败: %v\n", err)
	}
	return exitRuntime
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "c4pairs",
		Short: "Rebuild C4_200M (corrupted, clean) sentence pairs from edits and target sentences",
		Long: `c4pairs joins C4_200M edit records with their clean target sentences by MD5 hash
and applies the byte-offset edits to produce "corrupted<TAB>clean" pairs.

Configuration layers: defaults < file (JSON or YAML) < ENV (C4PAIRS_*, .env) < flags.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "配置文件（.json/.yaml）；缺省读取 C4PAIRS_CONFIG_FILE 或 ./c4pairs.yaml、./config.json（若存在）")
	pf.StringVar(&a.logLevel, "log-level", "", "日志级别 debug|info|warn|error（覆盖配置）")
	pf.IntVar(&a.concurrency, "concurrency", 0, "并发分片数（覆盖配置）")
	pf.IntVar(&a.numShards, "num-shards", 0, "分片数；路径中的 {shard} 或末尾追加 -%05d-of-%05d")
	pf.StringVar(&a.index, "index", "", "索引实现 memory|sqlite（覆盖配置）")
	pf.BoolVar(&a.status, "status", true, "终端状态提示（stderr）")

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return configError{err} })
	root.AddCommand(a.pairsCmd(), a.runCmd(), a.targetsCmd(), a.initConfigCmd())
	return root
}

// usageArgs 将参数个数错误归为配置错误。
func usageArgs(v cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := v(cmd, args); err != nil {
			return configError{err}
		}
		return nil
	}
}

func (a *app) pairsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pairs <target-sentences> <edits> <output>",
		Short: "Build sentence pairs for one shard (or a --num-shards template)",
		Long: `Reads "hash<TAB>start<TAB>end[<TAB>replacement]" edits and "hash<TAB>text" target
sentences, and writes "corrupted<TAB>clean" pairs. "-" reads STDIN / writes STDOUT;
.gz inputs are decompressed and .gz outputs compressed.

Example:
  c4pairs pairs target_sentences.tsv-{shard} edits.tsv-{shard} sentence_pairs.tsv-{shard} --num-shards 10`,
		Args: usageArgs(cobra.ExactArgs(3)),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cfg.Shards = []cfgpkg.Shard{{Sentences: args[0], Edits: args[1], Output: args[2]}}
			return a.runPairs(cmd.Context())
		},
	}
}

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Build sentence pairs for every shard listed in the configuration",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runPairs(cmd.Context())
		},
	}
}

func (a *app) targetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "targets <edits> <dataset-dir> <output>",
		Short: "Look up the target sentences referenced by edits files in the C4 dataset",
		Long: `Collects the hashes of an edits file (or of every shard with --num-shards),
scans *train*.json.gz documents of a C4 dataset directory (c4/en) once, MD5s every
line of each document's text and writes each shard's matches as "hash<TAB>text"
sorted by hash. Stops early once every hash is found.

Example:
  c4pairs targets edits.tsv-{shard} c4/en target_sentences.tsv-{shard} --num-shards 10`,
		Args: usageArgs(cobra.ExactArgs(3)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTargets(cmd.Context(), args[0], args[1], args[2])
		},
	}
}

func (a *app) initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir]",
		Short: "Write a default config.json and .env template (existing files are kept)",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = strings.TrimSpace(args[0])
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return configError{err}
			}
			if err := writeConfig(filepath.Join(dir, "config.json"), cfgpkg.DefaultTemplateConfig()); err != nil {
				return configError{err}
			}
			if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
				fmt.Fprintf(a.stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
			}
			return nil
		},
	}
}

// setup 按 defaults < file < ENV < CLI 合并配置，并初始化日志与终端。
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	a.corrID = uuid.NewString()
	if cmd.Name() == "init-config" {
		return nil
	}
	// 在任何 ENV 读取前加载 .env（不覆盖已有 ENV）。
	_ = cfgpkg.LoadDotEnv(".env")

	cfg := cfgpkg.Defaults()
	path := a.configPath
	if path == "" {
		path = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	if path == "" {
		for _, p := range []string{"c4pairs.yaml", "config.json"} {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" {
		base, err := cfgpkg.LoadFile(path)
		if err != nil {
			return configError{err}
		}
		cfg = cfgpkg.Merge(cfg, base)
	}
	env, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return configError{err}
	}
	cfg = cfgpkg.Merge(cfg, env)
	cfg = cfgpkg.Merge(cfg, cfgpkg.Config{
		Concurrency: a.concurrency,
		NumShards:   a.numShards,
		Logging:     cfgpkg.Logging{Level: a.logLevel},
		Components:  cfgpkg.Components{Index: a.index},
	})
	if err := cfgpkg.Validate(cfg); err != nil {
		a.dumpConfig(cfg)
		return configError{err}
	}
	a.cfg = cfg

	if a.logTo != nil {
		a.logger = diag.NewLoggerTo(a.logTo, a.corrID, cfg.Logging.Level)
	} else {
		a.logger = diag.NewLogger(a.corrID, cfg.Logging.Level)
	}
	a.logger.DebugStart("config", "effective", "", cfgpkg.Effective(cfg))
	return nil
}

func (a *app) runPairs(ctx context.Context) error {
	shards, err := cfgpkg.Shards(a.cfg)
	if err != nil {
		return configError{err}
	}
	comp, err := cfgpkg.Assemble(a.cfg)
	if err != nil {
		return configError{err}
	}
	term := diag.NewTerminal(a.stderr, a.status)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)

	sum, err := pipeline.Run(ctx, comp, shards, a.cfg.Concurrency, a.logger)
	if err != nil && sum.Shards == 0 && errors.Is(err, contract.ErrInvalidInput) {
		// 分片组合在启动前即被拒绝
		return configError{err}
	}
	a.printSummary(sum)
	if err != nil {
		diag.IncOp("pipeline", "error", "error")
		return err
	}
	diag.IncOp("pipeline", "finish", "success")
	return nil
}

func (a *app) runTargets(ctx context.Context, edits, dataset, output string) error {
	comp, err := cfgpkg.AssembleTargets(a.cfg)
	if err != nil {
		return configError{err}
	}
	shards, err := pipeline.ExpandTargets(pipeline.TargetShard{Edits: edits, Output: output}, a.cfg.NumShards)
	if err != nil {
		return configError{err}
	}
	start := time.Now()
	sum, err := pipeline.Targets(ctx, comp, shards, []string{dataset}, a.logger)
	if err != nil {
		if sum.Shards == 0 && errors.Is(err, contract.ErrInvalidInput) {
			return configError{err}
		}
		return err
	}
	fmt.Fprintf(a.stderr, "[targets] 分片 %d | 目标 %d | 找到 %d | 缺失 %d | 文档 %d | 用时 %s\n",
		sum.Shards, sum.Wanted, sum.Found, sum.Missing, sum.Corpus.Docs, time.Since(start).Round(time.Millisecond))
	return nil
}

// printSummary 输出运行结束时的跳过计数（诊断用，非致命）。
func (a *app) printSummary(s pipeline.Summary) {
	fmt.Fprintf(a.stderr, "[summary] 分片 %d | 句对 %d | 缺失句子 %d | 非法编辑组 %d | 非法边界 %d | 坏行 %d | 重复句子 %d\n",
		s.Shards, s.Pairs, s.NotFound, s.MalformedGroups, s.InvalidBoundary, s.MalformedLines(), s.DuplicateSentences)
}

func (a *app) dumpConfig(c cfgpkg.Config) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintf(a.stderr, "有效配置:\n%s\n", b)
}

func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	// 不覆盖已存在文件
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(b, '\n'))
	return err
}

// writeDotEnv 生成 .env 模板；已存在则跳过。
func writeDotEnv(path string) error {
	var b strings.Builder
	b.WriteString("# c4pairs .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > 配置文件\n\n")
	b.WriteString("C4PAIRS_CONFIG_FILE=\n\n")
	b.WriteString("# 单分片模板（三者须同时给出）\n")
	b.WriteString("C4PAIRS_SENTENCES=\n")
	b.WriteString("C4PAIRS_EDITS=\n")
	b.WriteString("C4PAIRS_OUTPUT=\n")
	b.WriteString("C4PAIRS_NUM_SHARDS=\n")
	b.WriteString("C4PAIRS_CONCURRENCY=\n")
	b.WriteString("C4PAIRS_LOG_LEVEL=\n\n")
	b.WriteString("# 组件选择\n")
	for _, c := range []string{"READER", "INDEX", "APPLICATOR", "WRITER", "CORPUS"} {
		b.WriteString("C4PAIRS_COMPONENTS_" + c + "=\n")
	}
	b.WriteString("\n# 组件 Options（原样 JSON）\n")
	for _, c := range []string{"READER", "INDEX", "APPLICATOR", "WRITER", "CORPUS"} {
		b.WriteString("C4PAIRS_OPTIONS_" + c + "_JSON=\n")
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}
