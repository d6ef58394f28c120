// 包 sky：天区坐标、视场范围计算与分层天区切片（S2 单元）
package sky

import "errors"

// ErrInvalidRegion：区域参数非法（越界、视场非正、退化多边形、切片数超限）
// 约束：调用方通过 errors.Is 判定；不可重试
var ErrInvalidRegion = errors.New("invalid region")
