package handlers

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message/catalog"
)

const (
	noticeUploadFailed    = "Upload failed: %s"
	noticeUnknownError    = "An unknown error occurred"
	noticeImageRequired   = "Please select an image"
	noticePromptRequired  = "Please enter a prompt"
	noticeFetchQueues     = "Error fetching queues"
	noticeCheckStatus     = "Error checking status: %s"
	noticeInvalidPayload  = "Invalid request payload"
	noticeSessionRequired = "access_token is required"
	noticeInvalidToken    = "Sign-in token was rejected"
)

var indonesianNotices = map[string]string{
	noticeUploadFailed:    "Unggah gagal: %s",
	noticeUnknownError:    "Terjadi kesalahan yang tidak diketahui",
	noticeImageRequired:   "Silakan pilih gambar",
	noticePromptRequired:  "Silakan masukkan prompt",
	noticeFetchQueues:     "Gagal mengambil antrean",
	noticeCheckStatus:     "Gagal memeriksa status: %s",
	noticeInvalidPayload:  "Permintaan tidak valid",
	noticeSessionRequired: "access_token wajib diisi",
	noticeInvalidToken:    "Token masuk ditolak",
}

func newNoticeCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, id := range indonesianNotices {
		_ = b.SetString(language.English, key, key)
		_ = b.SetString(language.Indonesian, key, id)
	}
	return b
}
