package httpapi

import (
	"net/http"

	"github.com/Tomochka91/ULogger/internal/easyserial"
)

// easySerialFieldDTO mirrors EasySerialParsedFieldConfig.
type easySerialFieldDTO struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Format string `json:"format,omitempty"`
}

// easySerialParserSettingsDTO mirrors EasySerialParserSettings. A nil
// Preamble means "no preamble configured", matching the original's
// Optional[str] = None.
type easySerialParserSettingsDTO struct {
	Preamble   *string              `json:"preamble"`
	Terminator string               `json:"terminator"`
	Separator  string               `json:"separator"`
	Encoding   string               `json:"encoding"`
	Fields     []easySerialFieldDTO `json:"fields"`
}

type easySerialParserTestRequest struct {
	RawText        string                      `json:"raw_text"`
	ParserSettings easySerialParserSettingsDTO `json:"parser_settings"`
}

type easySerialParserTestResponse struct {
	Parsed map[string]any `json:"parsed,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func (dto easySerialParserSettingsDTO) toSettings() easyserial.ParserSettings {
	fields := make([]easyserial.FieldConfig, 0, len(dto.Fields))
	for _, f := range dto.Fields {
		fields = append(fields, easyserial.FieldConfig{
			Index:  f.Index,
			Name:   f.Name,
			Type:   f.Type,
			Format: f.Format,
		})
	}

	preamble := ""
	hasPreamble := dto.Preamble != nil
	if hasPreamble {
		preamble = *dto.Preamble
	}

	return easyserial.ParserSettings{
		Preamble:    preamble,
		HasPreamble: hasPreamble,
		Terminator:  dto.Terminator,
		Separator:   dto.Separator,
		Encoding:    dto.Encoding,
		Fields:      fields,
	}
}

// testEasySerialParser feeds raw_text through the framer and field
// parser exactly as a live connection would, without opening a serial
// port, mirroring test_easy_serial_parser.
func (d *Deps) testEasySerialParser(w http.ResponseWriter, r *http.Request) {
	var payload easySerialParserTestRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	settings := payload.ParserSettings.toSettings()

	framer, err := easyserial.NewFramer(settings.Preamble, settings.HasPreamble, settings.Terminator)
	if err != nil {
		writeData(w, http.StatusOK, easySerialParserTestResponse{Error: err.Error()})
		return
	}

	rawBytes := easyserial.DecodeEscapedBytes(payload.RawText, true)
	frames := framer.Feed(rawBytes)
	if len(frames) == 0 {
		writeData(w, http.StatusOK, easySerialParserTestResponse{
			Error: "framer did not find any complete frame (check preamble/terminator)",
		})
		return
	}

	payloadText := string(frames[0])
	parsed, err := easyserial.ParsePayloadText(payloadText, settings)
	if err != nil {
		writeData(w, http.StatusOK, easySerialParserTestResponse{Error: err.Error()})
		return
	}

	writeData(w, http.StatusOK, easySerialParserTestResponse{Parsed: parsed})
}
