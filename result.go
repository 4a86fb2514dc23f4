package transload

// assembleResult folds the source reader, local writer and per-leg results
// into the caller-visible TransloadResult (spec §2 C5, §4.6).
func assembleResult(downloadURL string, source *SourceReader, lw *localWriter, legResults []UploadResult) *TransloadResult {
	result := &TransloadResult{
		URL:      downloadURL,
		Size:     source.ContentLength(),
		FileName: source.FileName(),
		MD5:      source.MD5(),
		Uploads:  legResults,
	}

	if lw != nil {
		local := lw.Result()
		result.Local = &local
	}

	return result
}
