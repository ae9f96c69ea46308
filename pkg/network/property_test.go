package network

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Incremental evaluation", func() {
	colors := []string{"red", "green", "blue"}
	tags := []string{"x", "y", "z"}

	randomTags := func(r *rand.Rand) []string {
		ret := []string{}
		for _, t := range tags {
			if r.Intn(3) == 0 {
				ret = append(ret, t)
			}
		}
		return ret
	}

	It("should match a from-scratch evaluation after every fact change", func() {
		r := rand.New(rand.NewSource(42))
		net := build(2, mixed()...)
		s := newSession(net)

		bins := []*bin{}
		items := []*item{}
		randomBin := func() *bin {
			if len(bins) == 0 || r.Intn(5) == 0 {
				return nil
			}
			return bins[r.Intn(len(bins))]
		}

		nextID := 0
		for step := 0; step < 300; step++ {
			nextID++
			switch op := r.Intn(10); {
			case op == 0 || len(bins) < 2:
				b := &bin{id: nextID, capacity: 5 + r.Intn(10)}
				bins = append(bins, b)
				Expect(s.Insert(b)).To(Succeed())
			case op == 1 && len(bins) > 2:
				// retract a bin, unassigning its items first
				k := r.Intn(len(bins))
				b := bins[k]
				for _, i := range items {
					if i.bin == b {
						i.bin = nil
						Expect(s.Update(i)).To(Succeed())
					}
				}
				bins = append(bins[:k], bins[k+1:]...)
				Expect(s.Retract(b)).To(Succeed())
			case op <= 4 || len(items) < 3:
				i := &item{id: nextID, color: colors[r.Intn(len(colors))], size: 1 + r.Intn(6),
					tags: randomTags(r), bin: randomBin()}
				items = append(items, i)
				Expect(s.Insert(i)).To(Succeed())
			case op == 5:
				k := r.Intn(len(items))
				Expect(s.Retract(items[k])).To(Succeed())
				items = append(items[:k], items[k+1:]...)
			default:
				i := items[r.Intn(len(items))]
				switch r.Intn(4) {
				case 0:
					i.bin = randomBin()
				case 1:
					i.color = colors[r.Intn(len(colors))]
				case 2:
					i.size = 1 + r.Intn(6)
				default:
					i.tags = randomTags(r)
				}
				Expect(s.Update(i)).To(Succeed())
			}
			expectFromScratch(s)
		}
	})

	It("should settle a batch like single changes", func() {
		r := rand.New(rand.NewSource(7))
		net := build(2, mixed()...)
		facts := []any{}
		bins := []*bin{{id: 100, capacity: 6}, {id: 101, capacity: 9}}
		for _, b := range bins {
			facts = append(facts, b)
		}
		for i := 0; i < 20; i++ {
			facts = append(facts, &item{id: i, color: colors[r.Intn(len(colors))], size: 1 + r.Intn(6),
				tags: randomTags(r), bin: bins[r.Intn(len(bins))]})
		}

		batch := newSession(net, facts...)
		single := newSession(net)
		for _, f := range facts {
			Expect(single.Insert(f)).To(Succeed())
		}
		Expect(batch.Score().String()).To(Equal(single.Score().String()))
		Expect(matchStrings(batch)).To(ConsistOf(matchStrings(single)))
	})
})
