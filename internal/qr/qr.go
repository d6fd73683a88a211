// Package qr は出欠トークンのペイロードを表示用の QR 画像に変換する。
package qr

import (
	"encoding/base64"
	"errors"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	DefaultSize   = 256
	dataURIPrefix = "data:image/png;base64,"
)

var ErrEmptyPayload = errors.New("qr: empty payload")

type Renderer struct {
	Size  int
	Level qrcode.RecoveryLevel
}

func NewRenderer(size int) Renderer {
	if size <= 0 {
		size = DefaultSize
	}
	return Renderer{Size: size, Level: qrcode.Medium}
}

// Render: PNG を data URI にして返す（フロントは <img src> にそのまま入れる）
func (r Renderer) Render(payload string) (string, error) {
	png, err := r.PNG(payload)
	if err != nil {
		return "", err
	}
	return dataURIPrefix + base64.StdEncoding.EncodeToString(png), nil
}

func (r Renderer) PNG(payload string) ([]byte, error) {
	if payload == "" {
		return nil, ErrEmptyPayload
	}
	size := r.Size
	if size <= 0 {
		size = DefaultSize
	}
	return qrcode.Encode(payload, r.Level, size)
}
