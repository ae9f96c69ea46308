package stream_test

import (
	"reflect"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/l7mp/dscore/pkg/index"
	"github.com/l7mp/dscore/pkg/score"
	"github.com/l7mp/dscore/pkg/stream"
)

func TestStream(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Stream Suite")
}

type item struct {
	name  string
	group string
	size  int
}

var (
	itemGroup = stream.F1(func(i *item) string { return i.group })
	itemSize  = stream.F1(func(i *item) int { return i.size })
)

// feed accumulates the given facts into a fresh container and returns the container and the
// undo functions.
func feed(c *stream.Collector, facts ...any) (any, []func()) {
	container := c.Supply()
	undos := []func(){}
	for _, f := range facts {
		undo, err := c.Accumulate(container, []any{f})
		Expect(err).NotTo(HaveOccurred())
		undos = append(undos, undo)
	}
	return container, undos
}

var _ = Describe("Func", func() {
	It("should adapt typed functions", func() {
		f := stream.F2(func(a *item, b *item) bool { return a.group == b.group })
		Expect(f.Arity()).To(Equal(2))
		Expect(f.Out()).To(Equal(reflect.TypeFor[bool]()))
		Expect(f.Test([]any{&item{group: "x"}, &item{group: "x"}})).To(BeTrue())
		Expect(f.Test([]any{&item{group: "x"}, &item{group: "y"}})).To(BeFalse())
		Expect(itemSize.Call([]any{&item{size: 3}})).To(Equal(3))
	})

	It("should pass the zero value for a fact of another type", func() {
		f := stream.F1(func(i *item) bool { return i == nil })
		Expect(f.Test([]any{"not an item"})).To(BeTrue())
	})

	It("should return nil for a nil function", func() {
		var fn func(*item) bool
		Expect(stream.F1(fn)).To(BeNil())
		Expect(stream.NewFunc("x", nil, nil, nil)).To(BeNil())
	})
})

var _ = Describe("Joiner", func() {
	It("should describe indexed joiners", func() {
		j := stream.LessThan(itemSize, itemSize)
		Expect(j.Kind()).To(Equal(index.LessThan))
		Expect(j.IsFiltering()).To(BeFalse())
		Expect(j.Compare()(1, 2)).To(Equal(-1))
		Expect(stream.Equal(nil, itemSize)).To(BeNil())
	})

	It("should share the mapping of EqualOn", func() {
		j := stream.EqualOn(func(i *item) string { return i.group })
		Expect(j.Left()).To(BeIdenticalTo(j.Right()))
	})

	It("should order naturally", func() {
		Expect(stream.Natural("a", "b")).To(Equal(-1))
		Expect(stream.Natural(int64(3), int64(2))).To(Equal(1))
		Expect(stream.Natural(decimal.NewFromInt(2), decimal.NewFromInt(2))).To(Equal(0))
	})
})

var _ = Describe("Collectors", func() {
	It("should count and undo", func() {
		c := stream.Count()
		container, undos := feed(c, 1, 2, 3)
		Expect(c.Finish(container)).To(Equal(3))
		undos[1]()
		Expect(c.Finish(container)).To(Equal(2))
	})

	It("should count distinct values", func() {
		c := stream.CountDistinct(nil)
		container, undos := feed(c, "a", "a", "b")
		Expect(c.Finish(container)).To(Equal(2))
		undos[0]()
		Expect(c.Finish(container)).To(Equal(2))
		undos[1]()
		Expect(c.Finish(container)).To(Equal(1))
	})

	It("should refuse non-comparable values", func() {
		c := stream.ToSet(nil)
		_, err := c.Accumulate(c.Supply(), []any{[]int{1}})
		Expect(err).To(MatchError(index.ErrNonComparableKey))
	})

	It("should sum and average", func() {
		a, b := &item{size: 2}, &item{size: 5}
		s := stream.Sum(itemSize)
		container, undos := feed(s, a, b)
		Expect(s.Finish(container)).To(Equal(int64(7)))
		undos[0]()
		Expect(s.Finish(container)).To(Equal(int64(5)))

		avg := stream.Average(itemSize)
		container, _ = feed(avg, a, b)
		Expect(avg.Finish(container)).To(Equal(3.5))

		d := stream.SumDecimal(itemSize)
		container, _ = feed(d, a, b)
		Expect(d.Finish(container).(decimal.Decimal).String()).To(Equal("7"))
	})

	It("should track the extrema under removal", func() {
		a, b, c := &item{size: 2}, &item{size: 5}, &item{size: 5}
		mx := stream.Max(itemSize, nil)
		container, undos := feed(mx, a, b, c)
		Expect(mx.Finish(container)).To(Equal(5))
		undos[1]()
		Expect(mx.Finish(container)).To(Equal(5))
		undos[2]()
		Expect(mx.Finish(container)).To(Equal(2))
		undos[0]()
		Expect(mx.Finish(container)).To(BeNil())

		mn := stream.Min(itemSize, nil)
		container, _ = feed(mn, a, b)
		Expect(mn.Finish(container)).To(Equal(2))
	})

	It("should collect lists and sets", func() {
		l := stream.ToList(itemGroup)
		x, y := &item{group: "x"}, &item{group: "y"}
		container, undos := feed(l, x, y, x)
		Expect(l.Finish(container)).To(Equal([]any{"x", "y", "x"}))
		undos[0]()
		Expect(l.Finish(container)).To(Equal([]any{"y", "x"}))

		s := stream.ToSet(itemGroup)
		container, _ = feed(s, x, y, x)
		Expect(s.Finish(container)).To(Equal(sets.New[any]("x", "y")))
	})

	It("should accumulate conditionally", func() {
		big := stream.F1(func(i *item) bool { return i.size > 3 })
		c := stream.Conditionally(big, stream.Count())
		container, _ := feed(c, &item{size: 1}, &item{size: 4})
		Expect(c.Finish(container)).To(Equal(1))
	})
})

var _ = Describe("Stream", func() {
	It("should track the fact types of the stages", func() {
		s := stream.ForEach[*item]().Join(stream.ForEach[string]())
		Expect(s.Arity()).To(Equal(2))
		Expect(s.Types()).To(Equal([]reflect.Type{reflect.TypeFor[*item](), reflect.TypeFor[string]()}))
		g := stream.ForEach[*item]().GroupBy([]*stream.Func{itemGroup}, stream.Count())
		Expect(g.Types()).To(Equal([]reflect.Type{reflect.TypeFor[string](), reflect.TypeFor[int]()}))
		Expect(g.String()).To(Equal("forEach(*stream_test.item).groupBy"))
	})

	It("should record nil operations at construction", func() {
		s := stream.ForEach[*item]().Filter(nil)
		Expect(s.Err()).To(MatchError(stream.ErrNilOperation))
		// later stages keep the first error
		Expect(s.Distinct().Err()).To(MatchError(stream.ErrNilOperation))
		Expect(stream.ForEach[*item]().Join(nil).Err()).To(MatchError(stream.ErrNilOperation))
		Expect(stream.ForEach[*item]().Map().Err()).To(MatchError(stream.ErrArity))
	})

	It("should enforce arity limits", func() {
		s := stream.ForEach[*item]()
		for i := 0; i < 3; i++ {
			s = s.Join(stream.ForEach[*item]())
		}
		Expect(s.Err()).NotTo(HaveOccurred())
		Expect(s.Join(stream.ForEach[*item]()).Err()).To(MatchError(stream.ErrArity))
		Expect(stream.ForEach[*item]().GroupBy(nil).Err()).To(MatchError(stream.ErrArity))
		keys := []*stream.Func{itemGroup, itemGroup, itemGroup}
		Expect(stream.ForEach[*item]().GroupBy(keys, stream.Count(), stream.Count()).Err()).To(MatchError(stream.ErrArity))
		Expect(stream.ForEach[*item]().Join(s).Err()).To(MatchError(stream.ErrArity))
	})

	It("should share the unique pair joiner", func() {
		id := stream.F1(func(i *item) string { return i.name })
		a := stream.ForEachUniquePair[*item](id)
		b := stream.ForEachUniquePair[*item](id)
		Expect(a.Joiners()[0]).To(BeIdenticalTo(b.Joiners()[0]))
		Expect(a.Joiners()[0].Kind()).To(Equal(index.LessThan))
	})

	It("should include unassigned facts on request", func() {
		s := stream.ForEach[*item]().IfExistsIncludingUnassigned(stream.ForEach[*item]().Filter(stream.F1(func(i *item) bool { return i.size > 0 })))
		Expect(s.Other().Parent().IncludesUnassigned()).To(BeTrue())
		Expect(stream.ForEach[*item]().IfExists(stream.ForEach[*item]()).Other().IncludesUnassigned()).To(BeFalse())
	})

	It("should build constraints", func() {
		c := stream.ForEach[*item]().Penalize(score.Ints(1)).AsConstraint("pkg", "name")
		Expect(c.Err()).NotTo(HaveOccurred())
		Expect(c.Ref().ID()).To(Equal("pkg/name"))
		Expect(c.Impact()).To(Equal(score.Penalty))

		Expect(stream.NewConstraint("pkg", "x", nil).Err()).To(MatchError(stream.ErrNoTerminal))
		Expect(stream.ForEach[*item]().Reward(nil).AsConstraint("pkg", "x").Err()).To(MatchError(stream.ErrNilOperation))
		Expect(stream.ForEach[*item]().Filter(nil).Penalize(score.Ints(1)).AsConstraint("pkg", "x").Err()).
			To(MatchError(stream.ErrNilOperation))
	})

	It("should describe fact types", func() {
		ft := stream.NewFactType(func(i *item) bool { return i.group != "" })
		Expect(ft.Type()).To(Equal(reflect.TypeFor[*item]()))
		Expect(ft.Assigned().Test([]any{&item{}})).To(BeFalse())
	})
})
