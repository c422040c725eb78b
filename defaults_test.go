package dalcore

import (
	"context"
	"reflect"

	"github.com/kent-id/dalcore/types"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type settings struct {
	ID      int
	Theme   string  `dal_default:"dark"`
	Retries *int    `dal_default:"3"`
	Ratio   float64 `dal_default:"0.5"`
	Home    *address
}

var _ = Describe("Default values", func() {
	var ctx context.Context
	BeforeEach(func() {
		ctx = context.Background()
	})

	When("populate defaults is enabled", func() {
		var engine *Engine
		BeforeEach(func() {
			engine = New(WithPopulateDefaults(true))
		})

		It("assigns defaults for absent columns, nested models included", func() {
			result := types.NewTabularResult([]string{"ID", "City"}, nil, []any{int64(1), "Utrecht"})
			rows, err := Populate[settings](ctx, engine, result)
			Expect(err).ToNot(HaveOccurred())
			s := rows[0]
			Expect(s.Theme).To(Equal("dark"))
			Expect(*s.Retries).To(Equal(3))
			Expect(s.Ratio).To(Equal(0.5))
			Expect(s.Home).To(Equal(&address{City: "Utrecht", Country: "NL"}))
		})

		It("does not apply a default to a column that is present but null", func() {
			result := types.NewTabularResult([]string{"ID", "Retries", "Theme"}, nil, []any{int64(1), types.DBNull, "light"})
			rows, err := Populate[settings](ctx, engine, result)
			Expect(err).ToNot(HaveOccurred())
			Expect(rows[0].Retries).To(BeNil())
			Expect(rows[0].Theme).To(Equal("light"))
		})

		It("allocates nested models that carry defaults", func() {
			result := types.NewTabularResult([]string{"ID"}, nil, []any{int64(1)})
			rows, err := Populate[settings](ctx, engine, result)
			Expect(err).ToNot(HaveOccurred())
			Expect(rows[0].Home).To(Equal(&address{Country: "NL"}))
		})
	})

	When("populate defaults is disabled", func() {
		It("leaves absent columns at their zero value", func() {
			result := types.NewTabularResult([]string{"ID"}, nil, []any{int64(1)})
			rows, err := Populate[settings](ctx, New(), result)
			Expect(err).ToNot(HaveOccurred())
			Expect(*rows[0]).To(Equal(settings{ID: 1}))
		})
	})

	Context("ApplyDefaults", func() {
		It("applies defaults to an existing instance", func() {
			s := &settings{Theme: "light"}
			Expect(New().ApplyDefaults(s, []string{"theme"})).To(Succeed())
			Expect(s.Theme).To(Equal("light"))
			Expect(*s.Retries).To(Equal(3))
		})

		It("requires a pointer", func() {
			Expect(New().ApplyDefaults(settings{}, nil)).ToNot(Succeed())
		})
	})

	It("is described as carrying defaults", func() {
		d, err := New().Describe(reflect.TypeOf(settings{}))
		Expect(err).ToNot(HaveOccurred())
		Expect(d.hasDefaults).To(BeTrue())
	})
})
