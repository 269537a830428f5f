package extraction

import "errors"

var (
	ErrMemoryRepositoryRequired = errors.New("memory repository required")
	ErrUploadRepositoryRequired = errors.New("upload repository required")
	ErrFetcherRequired          = errors.New("blob fetcher required")
	ErrExtractorRequired        = errors.New("extractor required")
	ErrTagResolverRequired      = errors.New("tag resolver required")
	ErrEmbeddingsRequired       = errors.New("embedding generator required")

	// ErrRunInProgress is returned by Run when the memory already has a run
	// queued or in flight.
	ErrRunInProgress = errors.New("extraction already in progress")

	// ErrMemoryDeleted is returned when the memory disappeared before or
	// during a run. Nothing is written for it.
	ErrMemoryDeleted = errors.New("memory deleted")

	// ErrNotProcessing is returned when the memory is not in processing.
	ErrNotProcessing = errors.New("memory is not processing")

	// ErrExtractionFailed is returned when a run ended by marking the memory
	// failed.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrUnsupportedURL is returned for source URLs that are not absolute
	// http or https addresses.
	ErrUnsupportedURL = errors.New("unsupported source url")

	// ErrPageFetch is returned when a source page cannot be downloaded.
	ErrPageFetch = errors.New("page fetch failed")

	// ErrUnsupportedContent is returned for pages that are not text.
	ErrUnsupportedContent = errors.New("unsupported page content")
)
