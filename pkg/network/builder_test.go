package network

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/dscore/pkg/score"
	"github.com/l7mp/dscore/pkg/stream"
)

func expectConfigError(err error, constraint string, target error) {
	ExpectWithOffset(1, err).To(HaveOccurred())
	var ce *ConfigError
	ExpectWithOffset(1, errors.As(err, &ce)).To(BeTrue())
	ExpectWithOffset(1, ce.Constraint).To(Equal(constraint))
	ExpectWithOffset(1, errors.Is(err, target)).To(BeTrue(), "error: %s", err)
}

var _ = Describe("Builder", func() {
	It("should share nodes between constraints", func() {
		net := build(1,
			stream.ForEach[*item]().Filter(isRed).Penalize(ints(1)).AsConstraint("test", "a"),
			stream.ForEach[*item]().Filter(isRed).Penalize(ints(2)).AsConstraint("test", "b"),
		)
		// source, assigned filter, red filter, two scoring nodes
		Expect(net.Nodes()).To(HaveLen(5))
		kinds := []NodeKind{}
		for _, n := range net.Nodes() {
			kinds = append(kinds, n.Kind())
		}
		Expect(kinds).To(Equal([]NodeKind{SourceNode, FilterNode, FilterNode, ScoringNode, ScoringNode}))
		Expect(net.Nodes()[2].Children()).To(HaveLen(2))
		Expect(net.Constraints()).To(HaveLen(2))
		Expect(net.Constraints()[1].Node).To(Equal(NodeID(4)))
	})

	It("should not share nodes built from different operations", func() {
		red := func(i *item) bool { return i.color == "red" }
		net := build(1,
			stream.ForEach[*item]().Filter(stream.F1(red)).Penalize(ints(1)).AsConstraint("test", "a"),
			stream.ForEach[*item]().Filter(stream.F1(red)).Penalize(ints(1)).AsConstraint("test", "b"),
		)
		Expect(net.Nodes()).To(HaveLen(6))
	})

	It("should order nodes below their parents", func() {
		net := build(2, mixed()...)
		for _, n := range net.Nodes() {
			for _, p := range n.Parents() {
				Expect(net.Node(p).Order()).To(BeNumerically("<", n.Order()), "node %s", n)
			}
			if n.Kind() == ScoringNode {
				Expect(n.Children()).To(BeEmpty())
			} else {
				Expect(n.Children()).NotTo(BeEmpty())
			}
		}
		Expect(net.MaxOrder()).To(BeNumerically(">=", 4))
		Expect(net.String()).To(ContainSubstring("scoring"))
	})

	It("should share a bridge between a join and an exists node", func() {
		net := build(1,
			stream.ForEach[*bin]().IfExists(stream.ForEach[*item](), stream.Equal(binSelf, itemBin)).
				Penalize(ints(1)).AsConstraint("test", "a"),
			stream.ForEach[*bin]().Join(stream.ForEach[*item](), stream.Equal(binSelf, itemBin)).
				Penalize(ints(1)).AsConstraint("test", "b"),
		)
		bridges := 0
		for _, n := range net.Nodes() {
			if n.Kind() == LeftBridgeNode || n.Kind() == RightBridgeNode {
				bridges++
				Expect(n.Children()).To(HaveLen(2))
			}
		}
		Expect(bridges).To(Equal(2))
	})

	It("should refuse duplicate constraints", func() {
		_, err := NewBuilder().Build(
			stream.ForEach[*item]().Penalize(ints(1)).AsConstraint("test", "a"),
			stream.ForEach[*bin]().Penalize(ints(1)).AsConstraint("test", "a"),
		)
		expectConfigError(err, "test/a", ErrDuplicateConstraint)
	})

	It("should refuse a filtering joiner before an indexed joiner", func() {
		_, err := NewBuilder().Build(
			stream.ForEach[*item]().
				Join(stream.ForEach[*item](), stream.Filtering(sameBin), stream.Equal(itemColor, itemColor)).
				Penalize(ints(1)).AsConstraint("test", "a"),
		)
		expectConfigError(err, "test/a", ErrFilteringBeforeIndexed)
	})

	It("should refuse functions that cannot accept the stream", func() {
		_, err := NewBuilder().Build(
			stream.ForEach[*item]().Filter(stream.F1(func(b *bin) bool { return b.id > 0 })).
				Penalize(ints(1)).AsConstraint("test", "a"),
		)
		expectConfigError(err, "test/a", ErrUnassignable)

		_, err = NewBuilder().Build(
			stream.ForEach[*item]().Join(stream.ForEach[*bin](), stream.Equal(itemBin, itemBin)).
				Penalize(ints(1)).AsConstraint("test", "b"),
		)
		expectConfigError(err, "test/b", ErrUnassignable)

		_, err = NewBuilder().Build(
			stream.ForEach[*item]().Filter(itemSize).Penalize(ints(1)).AsConstraint("test", "c"),
		)
		expectConfigError(err, "test/c", ErrUnassignable)
	})

	It("should accept functions over interfaces", func() {
		_, err := NewBuilder().Build(
			stream.ForEach[any]().Filter(isRed).Penalize(ints(1)).AsConstraint("test", "a"),
			stream.ForEach[*item]().Filter(stream.F1(func(s interface{ String() string }) bool {
				return s.String() != ""
			})).Penalize(ints(1)).AsConstraint("test", "b"),
		)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should refuse weights that do not fit the score", func() {
		_, err := NewBuilder().Build(
			stream.ForEach[*item]().Penalize(score.Longs(1)).AsConstraint("test", "a"))
		expectConfigError(err, "test/a", ErrWeight)

		_, err = NewBuilder(WithScoreKind(score.Int, 2)).Build(
			stream.ForEach[*item]().Penalize(ints(1)).AsConstraint("test", "b"))
		expectConfigError(err, "test/b", ErrWeight)

		_, err = NewBuilder().Build(
			stream.ForEach[*item]().Penalize(ints(-1)).AsConstraint("test", "c"))
		expectConfigError(err, "test/c", ErrWeight)

		_, err = NewBuilder().Build(
			stream.ForEach[*item]().Penalize(ints(1)).
				WithMatchWeigher(stream.F1(func(*item) string { return "x" })).AsConstraint("test", "d"))
		expectConfigError(err, "test/d", ErrWeight)
	})

	It("should accept negative weights for impact constraints", func() {
		_, err := NewBuilder().Build(
			stream.ForEach[*item]().Impact(ints(-3)).AsConstraint("test", "a"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should refuse constraints without a terminal", func() {
		_, err := NewBuilder().Build(stream.NewConstraint("test", "a", nil))
		expectConfigError(err, "test/a", stream.ErrNoTerminal)
	})

	It("should report stream construction errors", func() {
		_, err := NewBuilder().Build(
			stream.ForEach[*item]().Filter(nil).Penalize(ints(1)).AsConstraint("test", "a"))
		expectConfigError(err, "test/a", stream.ErrNilOperation)
	})

	It("should prune zero-weight constraints", func() {
		net, err := NewBuilder(WithWeightOverrides(map[string]score.Score{"test/b": ints(0)})).Build(
			stream.ForEach[*item]().Penalize(ints(0)).AsConstraint("test", "a"),
			stream.ForEach[*item]().Penalize(ints(1)).AsConstraint("test", "b"),
			stream.ForEach[*item]().Penalize(ints(1)).AsConstraint("test", "c"),
		)
		Expect(err).NotTo(HaveOccurred())
		Expect(net.Pruned()).To(Equal([]score.ConstraintRef{{Package: "test", Name: "a"}, {Package: "test", Name: "b"}}))
		Expect(net.Constraints()).To(HaveLen(1))
		Expect(net.Constraints()[0].Ref.ID()).To(Equal("test/c"))
	})

	It("should check zero-weight constraints before pruning them", func() {
		_, err := NewBuilder().Build(
			stream.ForEach[*item]().
				Join(stream.ForEach[*item](), stream.Filtering(sameBin), stream.Equal(itemColor, itemColor)).
				Penalize(ints(0)).AsConstraint("test", "a"),
		)
		expectConfigError(err, "test/a", ErrFilteringBeforeIndexed)

		_, err = NewBuilder(WithWeightOverrides(map[string]score.Score{"test/b": ints(0)})).Build(
			stream.ForEach[*item]().Filter(stream.F1(func(b *bin) bool { return b.id > 0 })).
				Penalize(ints(1)).AsConstraint("test", "b"),
		)
		expectConfigError(err, "test/b", ErrUnassignable)

		_, err = NewBuilder().Build(
			stream.ForEach[*item]().Penalize(ints(0)).
				WithMatchWeigher(stream.F1(func(*item) string { return "x" })).AsConstraint("test", "c"))
		expectConfigError(err, "test/c", ErrWeight)

		// a valid pruned constraint leaves no nodes behind
		net, err := NewBuilder().Build(
			stream.ForEach[*bin]().Penalize(ints(0)).AsConstraint("test", "d"),
			stream.ForEach[*item]().Penalize(ints(1)).AsConstraint("test", "e"),
		)
		Expect(err).NotTo(HaveOccurred())
		Expect(net.Nodes()).To(HaveLen(2))
	})

	It("should apply weight overrides", func() {
		net, err := NewBuilder(WithWeightOverrides(map[string]score.Score{"test/a": ints(5)})).Build(
			stream.ForEach[*item]().Penalize(ints(1)).AsConstraint("test", "a"))
		Expect(err).NotTo(HaveOccurred())
		Expect(net.Constraints()[0].Weight.String()).To(Equal("5"))

		s := newSession(net, &item{id: 1}, &item{id: 2})
		Expect(s.Score().String()).To(Equal("-10"))
	})
})
