package config_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/dscore/pkg/config"
	"github.com/l7mp/dscore/pkg/director"
	"github.com/l7mp/dscore/pkg/score"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Config", func() {
	It("should have valid defaults", func() {
		c := config.Default()
		Expect(c.Validate()).To(Succeed())
		kind, err := c.Kind()
		Expect(err).NotTo(HaveOccurred())
		Expect(kind).To(Equal(score.Int))
	})

	It("should parse YAML", func() {
		c, err := config.Parse([]byte(`
scoreKind: long
scoreLevels: 2
matchTracking: true
assertMode: incremental
weights:
  cloud/requiredCpuPower: "-2hard/0soft"
  cloud/computerCost: "0hard/0soft"
verbosity: 2
`))
		Expect(err).NotTo(HaveOccurred())
		Expect(c.ScoreKind).To(Equal("long"))
		Expect(c.Verbosity).To(Equal(2))

		weights, err := c.WeightOverrides()
		Expect(err).NotTo(HaveOccurred())
		Expect(weights).To(HaveLen(2))
		Expect(weights["cloud/requiredCpuPower"].Equal(score.Longs(-2, 0))).To(BeTrue())
		Expect(weights["cloud/computerCost"].IsZero()).To(BeTrue())

		opts, err := c.BuilderOptions()
		Expect(err).NotTo(HaveOccurred())
		Expect(opts).To(HaveLen(2))

		dopts, err := c.DirectorOptions()
		Expect(err).NotTo(HaveOccurred())
		Expect(dopts.MatchTracking).To(BeTrue())
		Expect(dopts.AssertMode).To(Equal(director.AssertIncremental))
	})

	It("should refuse invalid configurations", func() {
		_, err := config.Parse([]byte("scoreKind: float\n"))
		Expect(err).To(HaveOccurred())

		_, err = config.Parse([]byte("scoreLevels: 0\nassertMode: full\n"))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("scoreLevels"))
		Expect(err.Error()).To(ContainSubstring("full"))

		_, err = config.Parse([]byte("weights:\n  a/b: \"-1\"\n"))
		Expect(err).To(MatchError(ContainSubstring("a/b")))

		_, err = config.Parse([]byte("unknownField: 1\n"))
		Expect(err).To(HaveOccurred())
	})

	It("should load a file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "config.yaml")
		Expect(os.WriteFile(path, []byte("scoreKind: decimal\nscoreLevels: 1\n"), 0o600)).To(Succeed())
		c, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		kind, err := c.Kind()
		Expect(err).NotTo(HaveOccurred())
		Expect(kind).To(Equal(score.Decimal))

		_, err = config.Load(filepath.Join(GinkgoT().TempDir(), "missing.yaml"))
		Expect(err).To(HaveOccurred())
	})
})
