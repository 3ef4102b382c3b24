package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mpjuers/transmission/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeTrainingRun(run model.TrainingRun) ([]byte, error) {
	return json.Marshal(run)
}

func DecodeTrainingRun(data []byte) (model.TrainingRun, error) {
	var run model.TrainingRun
	if err := json.Unmarshal(data, &run); err != nil {
		return model.TrainingRun{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.TrainingRun{}, err
	}
	return run, nil
}

func EncodePosterior(record model.PosteriorRecord) ([]byte, error) {
	return json.Marshal(record)
}

func DecodePosterior(data []byte) (model.PosteriorRecord, error) {
	var record model.PosteriorRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.PosteriorRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.PosteriorRecord{}, err
	}
	return record, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d, want schema=%d codec=%d",
			ErrVersionMismatch, v.SchemaVersion, v.CodecVersion, CurrentSchemaVersion, CurrentCodecVersion)
	}
	return nil
}
