package types

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("TabularResult", func() {
	var result TabularResult
	BeforeEach(func() {
		result = NewTabularResult(
			[]string{"ID", "Name", "id"},
			[]string{"integer", "varchar"},
			[]any{1, "a", 2},
		)
	})

	It("keeps column order and fills missing types with empty tags", func() {
		Expect(result.ColumnNames()).To(Equal([]string{"ID", "Name", "id"}))
		Expect(result.Columns[2].Type).To(Equal(""))
		Expect(result.Rows).To(HaveLen(1))
	})

	It("finds the first column case-insensitively", func() {
		Expect(result.ColumnIndex("name")).To(Equal(1))
		Expect(result.ColumnIndex("Id")).To(Equal(0))
		Expect(result.ColumnIndex("missing")).To(Equal(-1))
	})

	When("signatures are compared", func() {
		It("is equal for equal name/type sequences", func() {
			other := NewTabularResult([]string{"ID", "Name", "id"}, []string{"integer", "varchar"})
			Expect(other.Signature()).To(Equal(result.Signature()))
		})

		It("differs when a type differs", func() {
			other := NewTabularResult([]string{"ID", "Name", "id"}, []string{"bigint", "varchar"})
			Expect(other.Signature()).ToNot(Equal(result.Signature()))
		})

		It("is empty when there are no columns", func() {
			Expect(TabularResult{}.Signature()).To(Equal(""))
		})
	})
})

var _ = Describe("DBNull", func() {
	It("is distinct from nil", func() {
		Expect(IsDBNull(DBNull)).To(BeTrue())
		Expect(IsDBNull(nil)).To(BeFalse())
		Expect(DBNull).ToNot(BeNil())
	})

	It("prints direction names", func() {
		Expect(Input.String()).To(Equal("input"))
		Expect(Output.String()).To(Equal("output"))
		Expect(Direction(9).String()).To(Equal("unknown"))
	})
})
