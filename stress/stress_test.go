package stress

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cfgpkg "c4pairs/internal/config"
	"c4pairs/internal/diag"
	"c4pairs/internal/pipeline"
	"c4pairs/pkg/contract"
)

const (
	numShards  = 8
	perShard   = 20000
	editsPerID = 3
)

var words = []string{"the", "a", "cat", "dog", "went", "goes", "to", "school", "yesterday", "and", "bought", "milk", "café", "naïve", "über"}

// genShard 生成一个分片：perShard 个句子，每句若干不重叠编辑，编辑流整体打乱。
func genShard(rng *rand.Rand, sentPath, editPath string) error {
	sf, err := os.Create(sentPath)
	if err != nil {
		return err
	}
	defer sf.Close()
	ef, err := os.Create(editPath)
	if err != nil {
		return err
	}
	defer ef.Close()
	sw, ew := bufio.NewWriter(sf), bufio.NewWriter(ef)

	var edits []string
	for i := 0; i < perShard; i++ {
		var b strings.Builder
		for j := 0; j < 8+rng.Intn(8); j++ {
			if j > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(words[rng.Intn(len(words))])
		}
		fmt.Fprintf(&b, " %d.", i)
		s := b.String()
		h := contract.HashOf(s)
		fmt.Fprintf(sw, "%s\t%s\n", h, s)
		// 以空格为边界切分，保证编辑落在码点边界上且互不重叠
		cuts := []int{0}
		for k := 0; k < len(s); k++ {
			if s[k] == ' ' {
				cuts = append(cuts, k)
			}
		}
		step := len(cuts) / editsPerID
		for k := 0; k+1 < len(cuts) && k/step < editsPerID; k += step {
			edits = append(edits, fmt.Sprintf("%s\t%d\t%d\t%s", h, cuts[k], cuts[k+1], words[rng.Intn(len(words))]))
		}
	}
	rng.Shuffle(len(edits), func(i, j int) { edits[i], edits[j] = edits[j], edits[i] })
	for _, e := range edits {
		if _, err := ew.WriteString(e + "\n"); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	return ew.Flush()
}

// TestStress 在不同并发度与索引实现下运行多分片流水线并记录延迟统计。
func TestStress(t *testing.T) {
	if testing.Short() {
		t.Skip("stress")
	}
	dir := t.TempDir()
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < numShards; i++ {
		suffix := fmt.Sprintf("-%05d-of-%05d", i, numShards)
		require.NoError(t, genShard(rng, filepath.Join(dir, "target_sentences.tsv"+suffix), filepath.Join(dir, "edits.tsv"+suffix)))
	}

	for _, index := range []string{"memory", "sqlite"} {
		for _, conc := range []int{1, 4, 8} {
			t.Run(fmt.Sprintf("%s_concurrency_%d", index, conc), func(t *testing.T) {
				const runs = 3
				latencies := make([]time.Duration, 0, runs)
				for i := 0; i < runs; i++ {
					outDir := t.TempDir()
					cfg := cfgpkg.Defaults()
					cfg.Shards = []cfgpkg.Shard{{
						Sentences: filepath.Join(dir, "target_sentences.tsv"),
						Edits:     filepath.Join(dir, "edits.tsv"),
						Output:    filepath.Join(outDir, "sentence_pairs.tsv"),
					}}
					cfg.NumShards = numShards
					cfg.Concurrency = conc
					cfg.Components.Index = index

					shards, err := cfgpkg.Shards(cfg)
					require.NoError(t, err)
					comp, err := cfgpkg.Assemble(cfg)
					require.NoError(t, err)

					start := time.Now()
					sum, err := pipeline.Run(context.Background(), comp, shards, conc, diag.Nop())
					dur := time.Since(start)
					require.NoError(t, err)
					require.Equal(t, int64(numShards*perShard), sum.Pairs)
					require.Zero(t, sum.Skipped())
					latencies = append(latencies, dur)
				}
				sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
				var total time.Duration
				for _, d := range latencies {
					total += d
				}
				avg := total / time.Duration(len(latencies))
				idx := int(math.Ceil(float64(len(latencies))*0.95)) - 1
				if idx < 0 {
					idx = 0
				}
				t.Logf("索引%s 并发%d 平均%v 95%%延迟%v 句对/秒%.0f", index, conc, avg, latencies[idx],
					float64(numShards*perShard)/avg.Seconds())
			})
		}
	}
}
