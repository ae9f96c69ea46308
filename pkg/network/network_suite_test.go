package network

import (
	"fmt"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/dscore/pkg/score"
	"github.com/l7mp/dscore/pkg/stream"
)

func TestNetwork(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Network Suite")
}

type bin struct {
	id       int
	capacity int
}

func (b *bin) String() string { return fmt.Sprintf("bin%d", b.id) }

type item struct {
	id    int
	color string
	size  int
	tags  []string
	bin   *bin
}

func (i *item) String() string { return fmt.Sprintf("item%d", i.id) }

var (
	itemID    = stream.F1(func(i *item) int { return i.id })
	itemColor = stream.F1(func(i *item) string { return i.color })
	itemSize  = stream.F1(func(i *item) int { return i.size })
	itemBin   = stream.F1(func(i *item) *bin { return i.bin })
	itemTags  = stream.F1(func(i *item) []string { return i.tags })
	binSelf   = stream.F1(func(b *bin) *bin { return b })
	tagSelf   = stream.F1(func(t string) string { return t })
	isRed     = stream.F1(func(i *item) bool { return i.color == "red" })
	sameBin   = stream.F2(func(a, b *item) bool { return a.bin == b.bin })

	itemType = stream.NewFactType(func(i *item) bool { return i.bin != nil })
)

func ints(levels ...int32) score.Score { return score.Ints(levels...) }

// mixed exercises every node kind on a two-level score.
func mixed() []*stream.Constraint {
	return []*stream.Constraint{
		stream.ForEachUniquePair[*item](itemID, stream.Equal(itemColor, itemColor)).
			Penalize(ints(0, 1)).AsConstraint("test", "sameColor"),
		stream.ForEach[*item]().
			GroupBy([]*stream.Func{itemBin}, stream.Sum(itemSize)).
			Filter(stream.F2(func(b *bin, total int64) bool { return total > int64(b.capacity) })).
			Penalize(ints(1, 0)).
			WithMatchWeigher(stream.F2(func(b *bin, total int64) int64 { return total - int64(b.capacity) })).
			AsConstraint("test", "capacity"),
		stream.ForEach[*bin]().
			IfNotExists(stream.ForEach[*item](), stream.Equal(binSelf, itemBin)).
			Penalize(ints(0, 2)).AsConstraint("test", "emptyBin"),
		stream.ForEach[*bin]().
			IfExistsIncludingUnassigned(stream.ForEach[*item](), stream.Equal(binSelf, itemBin)).
			Reward(ints(0, 1)).AsConstraint("test", "usedBin"),
		stream.ForEach[*item]().Map(itemColor).Distinct().
			Penalize(ints(0, 1)).AsConstraint("test", "colors"),
		stream.ForEach[*item]().
			Join(stream.ForEach[*item](), stream.LessThan(itemSize, itemSize), stream.Filtering(sameBin)).
			Impact(ints(0, 1)).AsConstraint("test", "smallerInBin"),
		stream.ForEach[*item]().Flatten(itemTags).
			GroupBy([]*stream.Func{tagSelf}, stream.Count()).
			Penalize(ints(0, 1)).
			WithMatchWeigher(stream.F2(func(_ string, n int) int { return n })).
			AsConstraint("test", "tags"),
		stream.ForEachIncludingUnassigned[*item]().
			Filter(stream.F1(func(i *item) bool { return i.bin == nil })).
			Penalize(ints(1, 0)).AsConstraint("test", "unassigned"),
	}
}

func build(levels int, cs ...*stream.Constraint) *Network {
	net, err := NewBuilder(WithScoreKind(score.Int, levels), WithFactTypes(itemType)).Build(cs...)
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	return net
}

func newSession(net *Network, facts ...any) *Session {
	s, err := net.NewSession(WithMatchTracking(true))
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	ExpectWithOffset(1, s.InsertAll(facts...)).To(Succeed())
	return s
}

func matchStrings(s *Session) []string {
	ms := s.Matches()
	ret := make([]string, len(ms))
	for i, m := range ms {
		ret[i] = m.String()
	}
	return ret
}

// expectFromScratch checks the session against a fresh session over the same facts.
func expectFromScratch(s *Session) {
	fresh := newSession(s.Network(), s.Facts()...)
	ExpectWithOffset(1, s.Score().String()).To(Equal(fresh.Score().String()))
	ExpectWithOffset(1, matchStrings(s)).To(ConsistOf(matchStrings(fresh)))
}
