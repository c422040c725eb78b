package dalcore

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"

	"github.com/kent-id/dalcore/types"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("RuntimeShape", func() {
	var (
		ctx    context.Context
		engine *Engine
	)
	BeforeEach(func() {
		ctx = context.Background()
		engine = New()
	})

	Context("Populate", func() {
		It("caches one routine per shape and column order", func() {
			result := types.NewTabularResult([]string{"id", "name"}, nil, []any{int64(1), "a"}, []any{int64(2), types.DBNull})
			for i := 0; i < 2; i++ {
				items, err := engine.Populate(ctx, nil, result)
				Expect(err).ToNot(HaveOccurred())
				Expect(items).To(HaveLen(2))
				name, ok := items[1].(*Record).Get("name")
				Expect(ok).To(BeTrue())
				Expect(name).To(BeNil())
			}
			stats := engine.Stats()
			Expect(stats.Shapes).To(Equal(CacheStats{Hits: 1, Misses: 1}))
			Expect(stats.Routines).To(Equal(CacheStats{Hits: 1, Misses: 1}))
		})
	})

	Context("Synthesize", func() {
		It("reuses the shape of an identical signature", func() {
			a := types.NewTabularResult([]string{"id", "name"}, []string{"integer", "varchar"}, []any{int32(1), "x"})
			b := types.NewTabularResult([]string{"id", "name"}, []string{"integer", "varchar"})

			sa, err := engine.ShapeOf(a)
			Expect(err).ToNot(HaveOccurred())
			sb, err := engine.ShapeOf(b)
			Expect(err).ToNot(HaveOccurred())
			Expect(sb).To(BeIdenticalTo(sa))
			Expect(engine.Stats().Shapes).To(Equal(CacheStats{Hits: 1, Misses: 1}))
		})

		It("builds a distinct shape for a different signature", func() {
			sa, _ := engine.Synthesize([]types.Column{{Name: "id", Type: "integer"}})
			sb, _ := engine.Synthesize([]types.Column{{Name: "id", Type: "bigint"}})
			sc, _ := engine.Synthesize([]types.Column{{Name: "ID", Type: "integer"}})
			Expect(sb).ToNot(BeIdenticalTo(sa))
			Expect(sc).ToNot(BeIdenticalTo(sa))
			Expect(engine.Stats().Shapes.Misses).To(Equal(int64(3)))
		})

		It("keeps column names as given", func() {
			s, err := engine.Synthesize([]types.Column{{Name: "Id"}, {Name: "first name"}})
			Expect(err).ToNot(HaveOccurred())
			Expect(s.Properties).To(HaveLen(2))
			Expect(s.Properties[1].Name).To(Equal("first name"))
			Expect(s.Properties[1].IsColumn()).To(BeTrue())
		})

		It("adds a placeholder property without columns", func() {
			s, err := engine.Synthesize(nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(s.Properties).To(HaveLen(1))
			Expect(s.Properties[0].Name).To(Equal(NoColumnsProperty))
			Expect(s.Properties[0].IsColumn()).To(BeFalse())
		})

		It("adds child list properties after the columns", func() {
			child, _ := engine.Synthesize([]types.Column{{Name: "parent_id"}})
			s, err := engine.Synthesize([]types.Column{{Name: "id"}},
				ChildList{Name: "Children", Shape: child},
				ChildList{Name: "Lines", Type: reflect.TypeOf(&orderLine{})})
			Expect(err).ToNot(HaveOccurred())
			Expect(s.Properties).To(HaveLen(3))
			Expect(s.Properties[1].Child.Shape).To(BeIdenticalTo(child))
			Expect(s.Properties[2].Child.Type).To(Equal(reflect.TypeOf(orderLine{})))

			again, _ := engine.Synthesize([]types.Column{{Name: "id"}},
				ChildList{Name: "Children", Shape: child},
				ChildList{Name: "Lines", Type: reflect.TypeOf(orderLine{})})
			Expect(again).To(BeIdenticalTo(s))
		})

		It("keeps distinct child types with the same name apart", func() {
			first := func() reflect.Type {
				type line struct{ ID int64 }
				return reflect.TypeOf(line{})
			}()
			second := func() reflect.Type {
				type line struct{ ID int64 }
				return reflect.TypeOf(line{})
			}()
			Expect(first.String()).To(Equal(second.String()))

			sa, err := engine.Synthesize([]types.Column{{Name: "id"}}, ChildList{Name: "Lines", Type: first})
			Expect(err).ToNot(HaveOccurred())
			sb, err := engine.Synthesize([]types.Column{{Name: "id"}}, ChildList{Name: "Lines", Type: second})
			Expect(err).ToNot(HaveOccurred())
			Expect(sb).ToNot(BeIdenticalTo(sa))
			Expect(sb.Properties[1].Child.Type).To(Equal(second))
		})

		It("rejects invalid child lists", func() {
			_, err := engine.Synthesize([]types.Column{{Name: "id"}}, ChildList{Name: "ID", Type: reflect.TypeOf(orderLine{})})
			Expect(errors.Is(err, ErrInvalidShape)).To(BeTrue())
			_, err = engine.Synthesize([]types.Column{{Name: "id"}}, ChildList{Name: "Lines"})
			Expect(errors.Is(err, ErrInvalidShape)).To(BeTrue())
		})
	})

	Context("Record", func() {
		var records []any
		BeforeEach(func() {
			result := types.NewTabularResult([]string{"id", "Name", "name"}, []string{"integer", "varchar", "varchar"},
				[]any{int32(1), "first", "second"},
				[]any{int32(2), types.DBNull, "x"})
			var err error
			records, err = engine.Populate(ctx, nil, result)
			Expect(err).ToNot(HaveOccurred())
			Expect(records).To(HaveLen(2))
		})

		It("reads values by exact then case-insensitive name", func() {
			r := records[0].(*Record)
			v, _ := r.Get("Name")
			Expect(v).To(Equal("first"))
			v, _ = r.Get("name")
			Expect(v).To(Equal("second"))
			v, _ = r.Get("ID")
			Expect(v).To(Equal(int32(1)))
			_, ok := r.Get("missing")
			Expect(ok).To(BeFalse())
			Expect(r.Value(2)).To(Equal("second"))
		})

		It("reports database nulls as nil", func() {
			r := records[1].(*Record)
			Expect(r.Value(1)).To(BeNil())
		})

		It("shares one shape across records", func() {
			Expect(records[1].(*Record).Shape()).To(BeIdenticalTo(records[0].(*Record).Shape()))
		})

		It("marshals to an ordered JSON object", func() {
			out, err := json.Marshal(records[0])
			Expect(err).ToNot(HaveOccurred())
			Expect(string(out)).To(Equal(`{"id":1,"Name":"first","name":"second"}`))
		})

		It("only accepts lists of the child element type", func() {
			child, _ := engine.Synthesize([]types.Column{{Name: "x"}})
			parent, _ := engine.Synthesize([]types.Column{{Name: "id"}}, ChildList{Name: "Kids", Shape: child})
			r := NewRecord(parent)
			Expect(r.Set("Kids", []string{"a"})).ToNot(Succeed())
			kid := NewRecord(child)
			Expect(kid.Set("x", 5)).To(Succeed())
			Expect(r.Set("kids", []*Record{kid})).To(Succeed())
			Expect(r.Children("Kids")).To(ConsistOf(kid))
			Expect(r.Map()).To(Equal(map[string]any{"id": nil, "Kids": []map[string]any{{"x": 5}}}))
			Expect(r.Set("nope", 1)).ToNot(Succeed())
		})
	})
})
