package main

import (
	"fmt"
	"regexp"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// AllImageOps matches the op strings understood by runOps: e/d erode/dilate once, E/D ten times.
const AllImageOps = `^[edED]*$`

var validImageOps = regexp.MustCompile(AllImageOps)

var opsByOpCode = map[byte]opFunc{
	'e': erode,
	'd': dilate,
	'E': nOps(10, erode),
	'D': nOps(10, dilate),
}

func UnknownImageOpErrMsg(knownOpsRegexp string) string {
	return fmt.Sprintf("imgop must match /%s/", knownOpsRegexp)
}

type opFunc func(src gocv.Mat, dst *gocv.Mat, kernel gocv.Mat) error

func erode(src gocv.Mat, dst *gocv.Mat, kernel gocv.Mat) error {
	return errors.Wrap(gocv.Erode(src, dst, kernel), "erode failed")
}

func dilate(src gocv.Mat, dst *gocv.Mat, kernel gocv.Mat) error {
	return errors.Wrap(gocv.Dilate(src, dst, kernel), "dilate failed")
}

func nOps(n int, op opFunc) opFunc {
	return func(src gocv.Mat, dst *gocv.Mat, kernel gocv.Mat) error {
		for i := 0; i < n; i++ {
			if err := op(*dst, dst, kernel); err != nil {
				return err
			}
		}
		return nil
	}
}

func runOp(opCode byte, img *gocv.Mat, kernel *gocv.Mat) error {
	op, ok := opsByOpCode[opCode]
	if !ok {
		return nil // Unknown opCode is a noop.
	}

	return op(*img, img, *kernel)
}

func runOps(ops string, img *gocv.Mat, kernel *gocv.Mat) error {
	for i := 0; i < len(ops); i++ {
		if err := runOp(ops[i], img, kernel); err != nil {
			return errors.Wrapf(err, "op %d (%q)", i, ops[i])
		}
	}
	return nil
}
