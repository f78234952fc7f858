package relay

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
)

// ImageMagickConverter はImageMagickのconvertコマンドを同期実行して
// プレビュー画像を生成するConverterの実装。
// コマンドの実行時間はctxで制限される。
type ImageMagickConverter struct {
	command string
}

// NewImageMagickConverter は変換器を生成する。
// commandが空の場合はconvertを使用する。
func NewImageMagickConverter(command string) *ImageMagickConverter {
	if command == "" {
		command = "convert"
	}
	return &ImageMagickConverter{command: command}
}

// PreviewImage は画像を幅240pxに縮小したプレビューJPEGを生成する。
func (c *ImageMagickConverter) PreviewImage(ctx context.Context, src, dst string) error {
	return c.run(ctx, dst, "-resize", "240x", "jpeg:"+src, "jpeg:"+dst)
}

// PreviewVideo は動画の先頭フレームからプレビューJPEGを生成する。
func (c *ImageMagickConverter) PreviewVideo(ctx context.Context, src, dst string) error {
	return c.run(ctx, dst, "mp4:"+src+"[0]", "jpeg:"+dst)
}

// run はconvertコマンドを実行し、出力ファイルの存在を確認する。
// 非ゼロ終了と出力欠落のどちらも失敗として扱う。
func (c *ImageMagickConverter) run(ctx context.Context, output string, args ...string) error {
	cmd := exec.CommandContext(ctx, c.command, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w: %s", c.command, err, bytes.TrimSpace(out))
	}
	if _, err := os.Stat(output); err != nil {
		return fmt.Errorf("%s produced no output file: %w", c.command, err)
	}
	return nil
}

var _ Converter = (*ImageMagickConverter)(nil)
