package classifier

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fres-sudo/neuravia/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const modelOrderPayload = `{
	"predicted_label": "Non_Demented",
	"predicted_class_idx": 2,
	"confidence": 0.7,
	"probabilities": [0.1, 0.0, 0.7, 0.2],
	"all_labels": ["Mild_Demented", "Moderate_Demented", "Non_Demented", "Very_Mild_Demented"]
}`

func TestDecode(t *testing.T) {
	Convey("Given an inference payload in model order", t, func() {
		c, err := Decode([]byte(modelOrderPayload))

		Convey("Then probabilities should be reordered healthy to severe", func() {
			So(err, ShouldBeNil)
			So(c.Probabilities, ShouldResemble, [4]float64{0.7, 0.2, 0.1, 0.0})
			So(c.PredictedLabel, ShouldEqual, "Non_Demented")
			So(c.Raw["predicted_class_idx"], ShouldEqual, 2.0)
			So(c.Score(), ShouldAlmostEqual, 88.0)
		})
	})

	Convey("Given a payload without labels", t, func() {
		c, err := Decode([]byte(`{"probabilities": [0, 1, 0, 0]}`))

		Convey("Then the model order should be assumed", func() {
			So(err, ShouldBeNil)
			So(c.Probabilities, ShouldResemble, [4]float64{0, 0, 0, 1})
			So(c.Score(), ShouldAlmostEqual, 10.0)
		})
	})

	Convey("Given malformed payloads", t, func() {
		_, err := Decode([]byte(`{"probabilities": [1], "all_labels": ["Alzheimer"]}`))
		So(errors.Is(err, ErrUnknownLabel), ShouldBeTrue)

		_, err = Decode([]byte(`{"probabilities": [0.5, 0.5]}`))
		So(err, ShouldNotBeNil)

		_, err = Decode([]byte(`{"probabilities": [0.5, 0.5], "all_labels": ["Non_Demented", "Non_Demented"]}`))
		So(err, ShouldNotBeNil)

		_, err = Decode([]byte(`not json`))
		So(err, ShouldNotBeNil)
	})
}

func TestClient_Classify(t *testing.T) {
	Convey("Given an inference server", t, func() {
		var gotName string
		var gotBytes []byte
		status := http.StatusOK
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f, hdr, err := r.FormFile("file")
			if err == nil {
				gotName = hdr.Filename
				gotBytes, _ = io.ReadAll(f)
			}
			if status != http.StatusOK {
				http.Error(w, "model not loaded", status)
				return
			}
			_, _ = w.Write([]byte(modelOrderPayload))
		}))
		defer srv.Close()

		client := New(WithURL(srv.URL), WithLogger(logger.Nop()))

		Convey("When a scan is uploaded", func() {
			c, err := client.Classify(context.Background(), "scan.png", []byte{0x89, 0x50})

			Convey("Then the file should be sent as multipart and classified", func() {
				So(err, ShouldBeNil)
				So(gotName, ShouldEqual, "scan.png")
				So(gotBytes, ShouldResemble, []byte{0x89, 0x50})
				So(c.Probabilities[0], ShouldAlmostEqual, 0.7)
			})
		})

		Convey("When the server fails", func() {
			status = http.StatusInternalServerError
			_, err := client.Classify(context.Background(), "scan.png", []byte{1})

			Convey("Then ErrClassification should be returned with the server message", func() {
				So(errors.Is(err, ErrClassification), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "model not loaded")
			})
		})

		Convey("When the image is empty", func() {
			_, err := client.Classify(context.Background(), "scan.png", nil)

			Convey("Then no request should be made", func() {
				So(errors.Is(err, ErrEmptyImage), ShouldBeTrue)
				So(gotName, ShouldBeEmpty)
			})
		})
	})
}
