package naming

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Name", func() {
	It("should parse name", func() {
		name := ParseName("Board[0].PIC[1]")
		Expect(name.Tokens[0].ElemName).To(Equal("Board"))
		Expect(name.Tokens[0].Index).To(Equal([]int{0}))
		Expect(name.Tokens[1].ElemName).To(Equal("PIC"))
		Expect(name.Tokens[1].Index).To(Equal([]int{1}))
	})

	It("should accept a plain hierarchical name", func() {
		Expect(func() { NameMustBeValid("Board.PIC") }).NotTo(Panic())
	})

	It("should panic if the name is empty", func() {
		Expect(func() { NameMustBeValid("") }).To(Panic())
	})

	It("should panic if name include underscore", func() {
		Expect(func() { NameMustBeValid("PIC_0") }).To(Panic())
	})

	It("should panic if name is not capitalized", func() {
		Expect(func() { NameMustBeValid("pic") }).To(Panic())
	})

	It("should have paired square brackets", func() {
		Expect(func() { NameMustBeValid("PIC[0") }).To(Panic())
		Expect(func() { NameMustBeValid("PIC0]") }).To(Panic())
	})

	It("should panic if element name is empty", func() {
		Expect(func() { NameMustBeValid("Board..PIC") }).To(Panic())
	})

	It("should build names", func() {
		Expect(BuildName("", "PIC")).To(Equal("PIC"))
		Expect(BuildName("Board", "PIC")).To(Equal("Board.PIC"))
		Expect(BuildNameWithIndex("Board", "PIC", 3)).
			To(Equal("Board.PIC[3]"))
	})

	It("should validate names in MakeNamedBase", func() {
		b := MakeNamedBase("Board.PIC[0]")
		Expect(b.Name()).To(Equal("Board.PIC[0]"))
		Expect(func() { MakeNamedBase("board") }).To(Panic())
	})
})
