package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the global logger", t, func() {
		Convey("When initialized with defaults", func() {
			So(Init(), ShouldBeNil)

			Convey("Then Get returns a usable logger", func() {
				So(Get(), ShouldNotBeNil)
				So(Sync(), ShouldBeNil)
			})
		})

		Convey("When initialized with an unknown format", func() {
			err := Init(WithFormat("xml"))

			Convey("Then it fails", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestLoggerOutput(t *testing.T) {
	Convey("Given a logger writing JSON to a buffer", t, func() {
		var buf bytes.Buffer
		So(Init(WithWriter(&buf), WithFormat("json")), ShouldBeNil)
		So(SetLevelString("info"), ShouldBeNil)
		ctx := context.Background()

		Convey("When logging through a named logger with fields", func() {
			Named("ledger").With(String("submission_id", "s1")).Info(ctx, "transition applied", Error(errors.New("boom")))
			out := buf.String()

			Convey("Then the record carries component, fields and source", func() {
				So(out, ShouldContainSubstring, `"component":"ledger"`)
				So(out, ShouldContainSubstring, `"submission_id":"s1"`)
				So(out, ShouldContainSubstring, `"error":"boom"`)
				So(out, ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When logging below the configured level", func() {
			Get().Debug(ctx, "hidden")

			Convey("Then nothing is written", func() {
				So(strings.Contains(buf.String(), "hidden"), ShouldBeFalse)
			})
		})

		Reset(func() {
			_ = Init()
		})
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given level strings", t, func() {
		So(SetLevelString("debug"), ShouldBeNil)
		So(SetLevelString("WARNING"), ShouldBeNil)
		So(SetLevelString(""), ShouldBeNil)
		So(SetLevelString("loud"), ShouldNotBeNil)
	})
}

func TestNop(t *testing.T) {
	Convey("Given a nop logger", t, func() {
		l := Nop()

		Convey("Then logging does not panic", func() {
			So(func() { l.Named("x").Warn(context.Background(), "ignored", Int("n", 1)) }, ShouldNotPanic)
		})
	})
}
