package config

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix 为所有环境变量覆盖项的前缀。
const EnvPrefix = "C4PAIRS_"

// Defaults 返回带有安全默认值的 Config 雏形。
func Defaults() Config {
	return Config{
		Concurrency: 1,
		Logging:     Logging{Level: "info"},
		Components: Components{
			Reader:     "fs",
			Index:      "memory",
			Applicator: "splice",
			Writer:     "fs",
			Corpus:     "c4json",
		},
	}
}

// LoadFile 从文件解析 Config：.yaml/.yml 走 YAML，其余按 JSON。
func LoadFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(b)
	default:
		return LoadJSON(b)
	}
}

// LoadJSON 严格解析 JSON（拒绝未知字段与尾随内容）。
func LoadJSON(raw []byte) (Config, error) {
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config json: %w", err)
	}
	if dec.More() {
		return Config{}, errors.New("config json: trailing data")
	}
	return cfg, nil
}

// LoadYAML 先解为通用树再转 JSON，复用同一套严格解码与 Options 原样透传。
func LoadYAML(raw []byte) (Config, error) {
	var tree any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return Config{}, fmt.Errorf("config yaml: %w", err)
	}
	if tree == nil {
		return Config{}, nil
	}
	b, err := json.Marshal(tree)
	if err != nil {
		return Config{}, fmt.Errorf("config yaml: %w", err)
	}
	return LoadJSON(b)
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Shards) > 0 {
		out.Shards = append([]Shard(nil), over.Shards...)
	}
	if over.NumShards != 0 {
		out.NumShards = over.NumShards
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	if lv := strings.TrimSpace(over.Logging.Level); lv != "" {
		out.Logging.Level = lv
	}

	// 组件名（空不覆盖）
	pick := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	pick(&out.Components.Reader, over.Components.Reader)
	pick(&out.Components.Index, over.Components.Index)
	pick(&out.Components.Applicator, over.Components.Applicator)
	pick(&out.Components.Writer, over.Components.Writer)
	pick(&out.Components.Corpus, over.Components.Corpus)

	// Options（完整替换对应键）
	raw := func(dst *json.RawMessage, v json.RawMessage) {
		if len(v) > 0 {
			*dst = append(json.RawMessage(nil), v...)
		}
	}
	raw(&out.Options.Reader, over.Options.Reader)
	raw(&out.Options.Index, over.Options.Index)
	raw(&out.Options.Applicator, over.Options.Applicator)
	raw(&out.Options.Writer, over.Options.Writer)
	raw(&out.Options.Corpus, over.Options.Corpus)
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合，前缀 C4PAIRS_）。
// 支持：SENTENCES/EDITS/OUTPUT（须同时给出，构成单个分片模板）、NUM_SHARDS、CONCURRENCY、
// LOG_LEVEL、COMPONENTS_<NAME>、OPTIONS_<NAME>_JSON。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	var sh Shard
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key, val := kv[len(EnvPrefix):eq], strings.TrimSpace(kv[eq+1:])
		if val == "" {
			continue
		}
		switch key {
		case "SENTENCES":
			sh.Sentences = val
		case "EDITS":
			sh.Edits = val
		case "OUTPUT":
			sh.Output = val
		case "NUM_SHARDS":
			n, err := strconv.Atoi(val)
			if err != nil {
				return Config{}, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			over.NumShards = n
		case "CONCURRENCY":
			n, err := strconv.Atoi(val)
			if err != nil {
				return Config{}, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			over.Concurrency = n
		case "LOG_LEVEL":
			over.Logging.Level = val
		case "COMPONENTS_READER":
			over.Components.Reader = val
		case "COMPONENTS_INDEX":
			over.Components.Index = val
		case "COMPONENTS_APPLICATOR":
			over.Components.Applicator = val
		case "COMPONENTS_WRITER":
			over.Components.Writer = val
		case "COMPONENTS_CORPUS":
			over.Components.Corpus = val
		case "OPTIONS_READER_JSON", "OPTIONS_INDEX_JSON", "OPTIONS_APPLICATOR_JSON", "OPTIONS_WRITER_JSON", "OPTIONS_CORPUS_JSON":
			if !json.Valid([]byte(val)) {
				return Config{}, fmt.Errorf("%s%s: invalid json", EnvPrefix, key)
			}
			raw := json.RawMessage(val)
			switch key {
			case "OPTIONS_READER_JSON":
				over.Options.Reader = raw
			case "OPTIONS_INDEX_JSON":
				over.Options.Index = raw
			case "OPTIONS_APPLICATOR_JSON":
				over.Options.Applicator = raw
			case "OPTIONS_WRITER_JSON":
				over.Options.Writer = raw
			case "OPTIONS_CORPUS_JSON":
				over.Options.Corpus = raw
			}
		}
	}
	switch {
	case sh == Shard{}:
	case sh.Sentences == "" || sh.Edits == "" || sh.Output == "":
		return Config{}, fmt.Errorf("%sSENTENCES, %sEDITS and %sOUTPUT must be set together", EnvPrefix, EnvPrefix, EnvPrefix)
	default:
		over.Shards = []Shard{sh}
	}
	return over, nil
}

// LoadDotEnv 读取简单的 .env 文件并注入进程环境。
// 规则：
// - 文件不存在时忽略；
// - 跳过空行与 # 注释；支持可选的 "export " 前缀；
// - 按首个 '=' 分割；成对的单/双引号被去除，双引号内处理 \n \t \" \\；
// - 不覆盖已存在的环境变量。
func LoadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := unquote(strings.TrimSpace(line[eq+1:]))
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}

func unquote(val string) string {
	if len(val) < 2 {
		return val
	}
	q := val[0]
	if (q != '\'' && q != '"') || val[len(val)-1] != q {
		return val
	}
	val = val[1 : len(val)-1]
	if q == '"' {
		r := strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\"`, `"`, `\\`, `\`)
		val = r.Replace(val)
	}
	return val
}
