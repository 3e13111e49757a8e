package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/narrowdown/pkg/alg/hashutil"
	"github.com/Sumatoshi-tech/narrowdown/pkg/alg/minhash"
	"github.com/Sumatoshi-tech/narrowdown/pkg/tokenize"
)

type hashFlags struct {
	algorithm   string
	all         bool
	fingerprint int
	tokenizer   string
	seed        uint64
}

func newHashCommand() *cobra.Command {
	var f hashFlags

	cmd := &cobra.Command{
		Use:   "hash <text>...",
		Short: "Hash input with the built-in hash primitives",
		Long: `Hash each argument with one of the hash primitives, or with --fingerprint N
print the N-value MinHash fingerprint of the joined arguments.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.fingerprint > 0 {
				return runFingerprint(cmd, strings.Join(args, " "), f)
			}

			return runHash(cmd, args, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.algorithm, "algorithm", "a", hashutil.Murmur3_32.String(),
		"hash algorithm: murmur3_32bit, xxhash_32bit or xxhash_64bit")
	fl.BoolVar(&f.all, "all", false, "print every algorithm")
	fl.IntVar(&f.fingerprint, "fingerprint", 0, "print a MinHash fingerprint with this many values")
	fl.StringVar(&f.tokenizer, "tokenizer", tokenize.KindWords+":3", "tokenizer descriptor for --fingerprint")
	fl.Uint64Var(&f.seed, "seed", minhash.DefaultSeed, "coefficient seed for --fingerprint")

	return cmd
}

func runHash(cmd *cobra.Command, args []string, f hashFlags) error {
	algorithms := []hashutil.Algorithm{hashutil.Murmur3_32, hashutil.XXHash32, hashutil.XXHash64}

	if !f.all {
		a, err := hashutil.ParseAlgorithm(f.algorithm)
		if err != nil {
			return err
		}

		algorithms = []hashutil.Algorithm{a}
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Input", "Algorithm", "Decimal", "Hex"})

	for _, arg := range args {
		for _, a := range algorithms {
			sum := a.Sum([]byte(arg))
			tbl.AppendRow(table.Row{arg, a.String(), sum, fmt.Sprintf("%#x", sum)})
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), tbl.Render())

	return nil
}

func runFingerprint(cmd *cobra.Command, text string, f hashFlags) error {
	tok, err := tokenize.Parse(f.tokenizer)
	if err != nil {
		return err
	}

	hasher, err := minhash.NewHasher(f.fingerprint, f.seed)
	if err != nil {
		return err
	}

	fp := hasher.Fingerprint(tok(text))

	values := make([]string, len(fp))
	for i, v := range fp {
		values[i] = fmt.Sprint(v)
	}

	fmt.Fprintln(cmd.OutOrStdout(), strings.Join(values, " "))

	return nil
}
