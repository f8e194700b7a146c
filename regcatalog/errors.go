package regcatalog

import "daqcore/internal/errs"

const op = "regcatalog"

func errMisaligned(what string) error {
	return errs.Logicf(op, errs.CodeMisalignedOffset, "%s must be byte-aligned", what)
}

func errBadWidth(width int) error {
	return errs.Logicf(op, errs.CodeBadBitWidth, "width %d exceeds 64 bits", width)
}

func errBadFractionalBits(n, lo, hi int) error {
	return errs.Logicf(op, errs.CodeBadFractionalBits, "nFractionalBits %d outside [%d,%d]", n, lo, hi)
}

func errLogicf(format string, args ...any) error {
	return errs.Logicf(op, errs.CodeMalformedMapFile, format, args...)
}
