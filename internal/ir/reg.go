package ir

// The sixteen general-purpose register identifiers an Operand's Reg
// payload can carry when Kind is one of R8/R16/R32/R64, numbered to match
// x86-64's own register encoding (0-15) so internal/codegen can hand a
// Reg straight to internal/jitasm without a translation table. MMX/XMM
// operands reuse the same Reg type but index their own 0-7/0-15 space,
// disambiguated by Kind. Named RegRAX.. (rather than RAX..) since R8/R16/
// R32/R64 are already taken by the Kind-tagged Operand constructors above.
const (
	RegRAX Reg = iota
	RegRCX
	RegRDX
	RegRBX
	RegRSP
	RegRBP
	RegRSI
	RegRDI
	RegR8
	RegR9
	RegR10
	RegR11
	RegR12
	RegR13
	RegR14
	RegR15
)
