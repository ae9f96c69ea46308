package network

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/dscore/pkg/score"
	"github.com/l7mp/dscore/pkg/stream"
)

var _ = Describe("Session", func() {
	var b1, b2 *bin

	BeforeEach(func() {
		b1, b2 = &bin{id: 1, capacity: 10}, &bin{id: 2, capacity: 5}
	})

	Context("joins", func() {
		It("should produce every ordered pair of a self-join", func() {
			net := build(1, stream.ForEach[*item]().
				Join(stream.ForEach[*item](), stream.Equal(itemColor, itemColor)).
				Penalize(ints(1)).AsConstraint("test", "pairs"))
			a, b := &item{id: 1, color: "red", bin: b1}, &item{id: 2, color: "red", bin: b1}
			s := newSession(net, a, b)
			Expect(matchStrings(s)).To(ConsistOf(
				"test/pairs[item1, item1]=-1", "test/pairs[item1, item2]=-1",
				"test/pairs[item2, item1]=-1", "test/pairs[item2, item2]=-1"))
			Expect(s.Score().String()).To(Equal("-4"))
		})

		It("should produce one pair per unique pair", func() {
			net := build(1, stream.ForEachUniquePair[*item](itemID, stream.Equal(itemColor, itemColor)).
				Penalize(ints(1)).AsConstraint("test", "pairs"))
			a, b := &item{id: 1, color: "red", bin: b1}, &item{id: 2, color: "red", bin: b1}
			s := newSession(net, b, a)
			Expect(matchStrings(s)).To(ConsistOf("test/pairs[item1, item2]=-1"))

			b.color = "blue"
			Expect(s.Update(b)).To(Succeed())
			Expect(s.Matches()).To(BeEmpty())
			Expect(s.Score().IsZero()).To(BeTrue())
		})

		It("should not depend on the insertion order of the sides", func() {
			c := stream.ForEach[*item]().Join(stream.ForEach[*bin](), stream.Equal(itemBin, binSelf)).
				Penalize(ints(1)).AsConstraint("test", "placed")
			net := build(1, c)
			items := []*item{{id: 1, bin: b1}, {id: 2, bin: b2}, {id: 3, bin: b1}}

			left := newSession(net)
			for _, i := range items {
				Expect(left.Insert(i)).To(Succeed())
			}
			Expect(left.Insert(b1)).To(Succeed())
			Expect(left.Insert(b2)).To(Succeed())

			right := newSession(net, b2, b1)
			for _, i := range items {
				Expect(right.Insert(i)).To(Succeed())
			}

			Expect(matchStrings(left)).To(HaveLen(3))
			Expect(matchStrings(left)).To(ConsistOf(matchStrings(right)))
		})

		It("should follow comparison joiners through updates", func() {
			net := build(1, stream.ForEach[*item]().
				Join(stream.ForEach[*item](), stream.LessThan(itemSize, itemSize)).
				Penalize(ints(1)).AsConstraint("test", "smaller"))
			a, b, c := &item{id: 1, size: 1, bin: b1}, &item{id: 2, size: 2, bin: b1}, &item{id: 3, size: 3, bin: b1}
			s := newSession(net, a, b, c)
			Expect(matchStrings(s)).To(ConsistOf("test/smaller[item1, item2]=-1",
				"test/smaller[item1, item3]=-1", "test/smaller[item2, item3]=-1"))

			a.size = 5
			Expect(s.Update(a)).To(Succeed())
			Expect(matchStrings(s)).To(ConsistOf("test/smaller[item2, item1]=-1",
				"test/smaller[item3, item1]=-1", "test/smaller[item2, item3]=-1"))
			expectFromScratch(s)
		})

		It("should apply filtering joiners after the index", func() {
			net := build(1, stream.ForEach[*item]().
				Join(stream.ForEach[*item](), stream.Equal(itemColor, itemColor),
					stream.Filtering(stream.F2(func(a, b *item) bool { return a.id != b.id }))).
				Penalize(ints(1)).AsConstraint("test", "others"))
			s := newSession(net, &item{id: 1, color: "red", bin: b1}, &item{id: 2, color: "red", bin: b1},
				&item{id: 3, color: "blue", bin: b1})
			Expect(matchStrings(s)).To(ConsistOf("test/others[item1, item2]=-1", "test/others[item2, item1]=-1"))
		})
	})

	Context("exists", func() {
		var net *Network

		BeforeEach(func() {
			net = build(1,
				stream.ForEach[*bin]().IfNotExists(stream.ForEach[*item](), stream.Equal(binSelf, itemBin)).
					Penalize(ints(1)).AsConstraint("test", "empty"),
				stream.ForEach[*bin]().IfExists(stream.ForEach[*item](), stream.Equal(binSelf, itemBin)).
					Reward(ints(1)).AsConstraint("test", "used"),
			)
		})

		It("should track the presence of matching facts", func() {
			i := &item{id: 1, bin: b1}
			s := newSession(net, b1, b2)
			Expect(matchStrings(s)).To(ConsistOf("test/empty[bin1]=-1", "test/empty[bin2]=-1"))

			Expect(s.Insert(i)).To(Succeed())
			Expect(matchStrings(s)).To(ConsistOf("test/used[bin1]=1", "test/empty[bin2]=-1"))

			i.bin = b2
			Expect(s.Update(i)).To(Succeed())
			Expect(matchStrings(s)).To(ConsistOf("test/empty[bin1]=-1", "test/used[bin2]=1"))
			expectFromScratch(s)

			Expect(s.Retract(i)).To(Succeed())
			Expect(matchStrings(s)).To(ConsistOf("test/empty[bin1]=-1", "test/empty[bin2]=-1"))
		})

		It("should ignore unassigned facts unless asked to include them", func() {
			n := build(1,
				stream.ForEach[*item]().Penalize(ints(1)).AsConstraint("test", "assigned"),
				stream.ForEachIncludingUnassigned[*item]().Penalize(ints(1)).AsConstraint("test", "all"),
			)
			i := &item{id: 1}
			s := newSession(n, i)
			Expect(matchStrings(s)).To(ConsistOf("test/all[item1]=-1"))

			i.bin = b1
			Expect(s.Update(i)).To(Succeed())
			Expect(matchStrings(s)).To(ConsistOf("test/all[item1]=-1", "test/assigned[item1]=-1"))
		})

		It("should count unassigned facts for the including variant", func() {
			hasNil := stream.F1(func(b *bin) *bin { return nil })
			n := build(1,
				stream.ForEach[*bin]().IfExists(stream.ForEach[*item](), stream.Equal(hasNil, itemBin)).
					Penalize(ints(1)).AsConstraint("test", "assigned"),
				stream.ForEach[*bin]().IfExistsIncludingUnassigned(stream.ForEach[*item](), stream.Equal(hasNil, itemBin)).
					Penalize(ints(1)).AsConstraint("test", "all"),
			)
			s := newSession(n, b1, &item{id: 1})
			Expect(matchStrings(s)).To(ConsistOf("test/all[bin1]=-1"))
		})
	})

	Context("groups", func() {
		It("should count per key and update only the affected group", func() {
			net := build(1, stream.ForEach[*item]().
				GroupBy([]*stream.Func{itemColor}, stream.Count()).
				Penalize(ints(1)).WithMatchWeigher(stream.F2(func(_ string, n int) int { return n })).
				AsConstraint("test", "count"))
			reds := []*item{}
			facts := []any{}
			for i := 0; i < 10; i++ {
				it := &item{id: i, color: "blue", bin: b1}
				if i < 3 {
					it.color = "red"
					reds = append(reds, it)
				}
				facts = append(facts, it)
			}
			s := newSession(net, facts...)
			Expect(matchStrings(s)).To(ConsistOf("test/count[red, 3]=-3", "test/count[blue, 7]=-7"))

			group := net.Constraints()[0].Node - 1
			Expect(net.Node(group).Kind()).To(Equal(GroupNode))
			blue := s.memory(group).(*groupMemory).groups["blue"].tuple

			Expect(s.Retract(reds[0])).To(Succeed())
			Expect(matchStrings(s)).To(ConsistOf("test/count[red, 2]=-2", "test/count[blue, 7]=-7"))
			// source, assigned filter, group bridge, red group, red match
			Expect(s.refreshes).To(Equal(5))
			Expect(s.memory(group).(*groupMemory).groups["blue"].tuple).To(BeIdenticalTo(blue))
			Expect(blue.State()).To(Equal(Active))
		})

		It("should remove a group with its last contribution", func() {
			net := build(1, stream.ForEach[*item]().
				GroupBy([]*stream.Func{itemColor}, stream.Count()).
				Penalize(ints(1)).AsConstraint("test", "groups"))
			a := &item{id: 1, color: "red", bin: b1}
			s := newSession(net, a)
			Expect(matchStrings(s)).To(ConsistOf("test/groups[red, 1]=-1"))

			a.color = "green"
			Expect(s.Update(a)).To(Succeed())
			Expect(matchStrings(s)).To(ConsistOf("test/groups[green, 1]=-1"))

			Expect(s.Retract(a)).To(Succeed())
			Expect(s.Matches()).To(BeEmpty())
			group := net.Constraints()[0].Node - 1
			Expect(s.memory(group).(*groupMemory).groups).To(BeEmpty())
		})

		It("should aggregate with several collectors", func() {
			net := build(1, stream.ForEach[*item]().
				GroupBy([]*stream.Func{itemBin}, stream.Sum(itemSize), stream.Max(itemSize, stream.Natural)).
				Filter(stream.F3(func(b *bin, total int64, largest any) bool {
					return total > int64(b.capacity) || largest.(int) > 4
				})).
				Penalize(ints(1)).AsConstraint("test", "load"))
			a, b := &item{id: 1, size: 3, bin: b2}, &item{id: 2, size: 2, bin: b2}
			s := newSession(net, a, b)
			Expect(s.Matches()).To(BeEmpty())

			b.size = 5
			Expect(s.Update(b)).To(Succeed())
			Expect(matchStrings(s)).To(ConsistOf("test/load[bin2, 8, 5]=-1"))

			b.bin = b1
			Expect(s.Update(b)).To(Succeed())
			Expect(matchStrings(s)).To(ConsistOf("test/load[bin1, 5, 5]=-1"))
			expectFromScratch(s)
		})
	})

	Context("map, flatten and distinct", func() {
		It("should fold equal tuples", func() {
			net := build(1, stream.ForEach[*item]().Map(itemColor).Distinct().
				Penalize(ints(1)).AsConstraint("test", "colors"))
			a, b, c := &item{id: 1, color: "red", bin: b1}, &item{id: 2, color: "red", bin: b1},
				&item{id: 3, color: "blue", bin: b1}
			s := newSession(net, a, b, c)
			Expect(matchStrings(s)).To(ConsistOf("test/colors[red]=-1", "test/colors[blue]=-1"))

			Expect(s.Retract(a)).To(Succeed())
			Expect(matchStrings(s)).To(ConsistOf("test/colors[red]=-1", "test/colors[blue]=-1"))
			Expect(s.Retract(b)).To(Succeed())
			Expect(matchStrings(s)).To(ConsistOf("test/colors[blue]=-1"))

			c.color = "red"
			Expect(s.Update(c)).To(Succeed())
			Expect(matchStrings(s)).To(ConsistOf("test/colors[red]=-1"))
		})

		It("should flatten the last fact", func() {
			net := build(1, stream.ForEach[*item]().
				Join(stream.ForEach[*bin](), stream.Equal(itemBin, binSelf)).
				Flatten(stream.F1(func(b *bin) []int { return []int{b.id, b.capacity} })).
				Penalize(ints(1)).AsConstraint("test", "flat"))
			i := &item{id: 1, bin: b2}
			s := newSession(net, b1, b2, i)
			Expect(matchStrings(s)).To(ConsistOf("test/flat[item1, 2]=-1", "test/flat[item1, 5]=-1"))

			i.bin = b1
			Expect(s.Update(i)).To(Succeed())
			Expect(matchStrings(s)).To(ConsistOf("test/flat[item1, 1]=-1", "test/flat[item1, 10]=-1"))
		})
	})

	Context("scoring", func() {
		It("should multiply the weight with the match weight", func() {
			net := build(1, stream.ForEach[*item]().Penalize(ints(1)).
				WithMatchWeigher(stream.F1(func(*item) int32 { return 20 })).AsConstraint("test", "twenty"))
			s := newSession(net, &item{id: 1, bin: b1}, &item{id: 2, bin: b1})
			Expect(s.ConstraintTotal(score.ConstraintRef{Package: "test", Name: "twenty"}).String()).To(Equal("-40"))
			Expect(s.Score().String()).To(Equal("-40"))
			Expect(s.MatchTotals()).To(HaveLen(1))
			Expect(s.MatchTotals()[0].Count).To(Equal(2))
		})

		It("should fail on a negative match weight and break the session", func() {
			net := build(1, stream.ForEach[*item]().Penalize(ints(1)).
				WithMatchWeigher(stream.F1(func(*item) int { return -1 })).AsConstraint("test", "negative"))
			s := newSession(net)
			err := s.Insert(&item{id: 1, bin: b1})
			Expect(err).To(HaveOccurred())
			var se *score.SignError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.Constraint.ID()).To(Equal("test/negative"))
			Expect(err.Error()).To(ContainSubstring("test/negative"))

			Expect(s.Err()).To(HaveOccurred())
			Expect(s.Insert(&item{id: 2})).To(MatchError(ErrBroken))
		})

		It("should use decimal match weights", func() {
			net, err := NewBuilder(WithScoreKind(score.Decimal, 1)).Build(stream.ForEach[*bin]().
				Reward(score.MustParse(score.Decimal, "0.5")).
				WithMatchWeigher(stream.NewFunc("capacity", nil, nil, func(f []any) any {
					return f[0].(*bin).capacity
				})).AsConstraint("test", "capacity"))
			Expect(err).NotTo(HaveOccurred())
			s := newSession(net, b1, b2)
			Expect(s.Score().String()).To(Equal("7.5"))
		})

		It("should report indictments", func() {
			net := build(1, stream.ForEachUniquePair[*item](itemID, stream.Equal(itemColor, itemColor)).
				Penalize(ints(1)).AsConstraint("test", "pairs"))
			a, b, c := &item{id: 1, color: "red", bin: b1}, &item{id: 2, color: "red", bin: b1},
				&item{id: 3, color: "red", bin: b1}
			s := newSession(net, a, b, c)
			ind := s.Indictments()
			Expect(ind).To(HaveLen(3))
			for _, i := range ind {
				Expect(i.Count).To(Equal(2))
				Expect(i.Score.String()).To(Equal("-2"))
			}
		})
	})

	Context("fact changes", func() {
		It("should restore the score after an insert and a retract", func() {
			net := build(2, mixed()...)
			s := newSession(net, b1, b2, &item{id: 1, color: "red", size: 4, bin: b1, tags: []string{"x"}},
				&item{id: 2, color: "red", size: 7, bin: b2})
			before, matches := s.Score().String(), matchStrings(s)

			i := &item{id: 3, color: "red", size: 9, bin: b2, tags: []string{"x", "y"}}
			Expect(s.Insert(i)).To(Succeed())
			Expect(s.Score().String()).NotTo(Equal(before))
			Expect(s.Retract(i)).To(Succeed())

			Expect(s.Score().String()).To(Equal(before))
			Expect(matchStrings(s)).To(ConsistOf(matches))
		})

		It("should refuse unknown and duplicate facts", func() {
			net := build(1, stream.ForEach[*item]().Penalize(ints(1)).AsConstraint("test", "a"))
			i := &item{id: 1, bin: b1}
			s := newSession(net, i)
			Expect(s.Insert(i)).To(MatchError(ErrDuplicateFact))
			Expect(s.Update(&item{id: 2})).To(MatchError(ErrUnknownFact))
			Expect(s.Retract(&item{id: 2})).To(MatchError(ErrUnknownFact))
			Expect(s.Insert(nil)).To(HaveOccurred())
			Expect(s.Insert([]int{1})).To(HaveOccurred())
			Expect(s.Facts()).To(ConsistOf(i))
		})

		It("should keep facts no constraint uses", func() {
			net := build(1, stream.ForEach[*item]().Penalize(ints(1)).AsConstraint("test", "a"))
			s := newSession(net, "unused", b1)
			Expect(s.Facts()).To(HaveLen(2))
			Expect(s.Retract("unused")).To(Succeed())
			Expect(s.Score().IsZero()).To(BeTrue())
		})

		It("should run independent sessions on one network", func() {
			net := build(2, mixed()...)
			s1 := newSession(net, b1, &item{id: 1, color: "red", size: 12, bin: b1})
			s2 := newSession(net, b2)
			Expect(s1.Score().String()).NotTo(Equal(s2.Score().String()))
			expectFromScratch(s1)
			expectFromScratch(s2)
		})
	})
})
