package api

import (
	"context"
	"errors"
	"net/http"

	"vip/internal/dispatch"
	vipErrors "vip/internal/errors"
	"vip/internal/pipeline"
	"vip/internal/runs"
	"vip/internal/schema"
	"vip/internal/version"
	"vip/internal/web"
)

// PredictResponse is the JSON answer to a prediction.
type PredictResponse struct {
	Label      string `json:"label"`
	Prediction int    `json:"prediction"`
}

// handlePredict handles POST /. Form posts get the result page; JSON bodies
// get a PredictResponse. Invalid input is rejected with 422 before the
// predictor is reached.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	asJSON := isJSONRequest(r)

	in, err := s.readInput(r, asJSON)
	if err != nil {
		s.logger.Debug("Unreadable prediction request",
			"error", err.Error(),
			"requestID", GetRequestID(r.Context()),
		)
		if asJSON {
			BadRequest(w, "Invalid request body", err)
		} else {
			WriteText(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		}
		return
	}

	var record schema.VehicleRecord
	if asJSON {
		record, err = schema.ValidateAll(in)
	} else {
		record, err = schema.Validate(in)
	}
	if err != nil {
		s.rejectInput(w, err, asJSON)
		return
	}

	outcome, err := s.predict(r.Context(), record)
	if err != nil {
		if r.Context().Err() != nil {
			s.logger.Warn("Client left before prediction finished",
				"requestID", GetRequestID(r.Context()),
			)
			return
		}
		s.logger.Warn("Prediction failed",
			"error", err.Error(),
			"requestID", GetRequestID(r.Context()),
		)
		if asJSON {
			code := vipErrors.PipelineFailure
			if errors.Is(err, dispatch.ErrStopped) {
				code = vipErrors.DispatchUnavailable
			}
			WriteVipError(w, vipErrors.New(code, err.Error(), err))
			return
		}
		s.renderPage(w, r, web.ResultPage, web.ResultData{
			Context: "Error: " + err.Error(),
			Failed:  true,
			Version: version.Version,
		})
		return
	}

	if asJSON {
		WriteJSON(w, PredictResponse{Label: outcome.Label(), Prediction: int(outcome)}, http.StatusOK)
		return
	}
	s.renderPage(w, r, web.ResultPage, web.ResultData{
		Context:  outcome.Label(),
		Positive: outcome == pipeline.OutcomeYes,
		Version:  version.Version,
	})
}

// readInput collects the raw fields from the request body. Query string
// values are ignored.
func (s *Server) readInput(r *http.Request, asJSON bool) (schema.RawInput, error) {
	if asJSON {
		return schema.FromJSON(r.Body)
	}

	var err error
	if isMultipart(r) {
		err = r.ParseMultipartForm(s.maxBodyBytes)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return nil, err
	}
	return schema.FromForm(r.PostForm), nil
}

func (s *Server) rejectInput(w http.ResponseWriter, err error, asJSON bool) {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		for _, fe := range verr.Fields {
			s.metrics.RecordValidationFailure(fe.Field)
		}
	}

	if !asJSON {
		WriteText(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	vipErr := vipErrors.New(vipErrors.ValidationFailed, "Invalid prediction input", err)
	if verr != nil {
		vipErr = vipErr.WithDetails(verr.Fields)
	}
	WriteVipError(w, vipErr)
}

// predict runs the predictor on a worker and reads the first outcome.
func (s *Server) predict(ctx context.Context, record schema.VehicleRecord) (pipeline.Outcome, error) {
	frame := pipeline.NewFrame(pipeline.ToRow(record))

	prediction, err := dispatch.Call(ctx, s.dispatcher, runs.KindPredict, func(ctx context.Context) ([]int, error) {
		return s.predictor.Predict(ctx, frame)
	})
	if err != nil {
		return pipeline.OutcomeNo, err
	}
	return pipeline.OutcomeOf(prediction)
}
