package domain

// palette 是分配给连接的固定 10 色调色板。
var palette = [...]string{
	"#FF6B6B",
	"#4ECDC4",
	"#45B7D1",
	"#96CEB4",
	"#FFEAA7",
	"#DDA0DD",
	"#98D8C8",
	"#F7DC6F",
	"#BB8FCE",
	"#85C1E9",
}

// ColorFor 根据连接标识符确定性地从调色板中选取一个颜色。
// 同一个标识符总是得到同一个颜色，无任何外部状态。
// 哈希算法: hash = char + (hash<<5 - hash)，即 hash_i = c_i + 31*hash_{i-1}。
func ColorFor(connID string) string {
	var hash int32
	for _, ch := range connID {
		hash = int32(ch) + (hash<<5 - hash)
	}
	idx := int(hash % int32(len(palette)))
	if idx < 0 {
		idx = -idx
	}
	return palette[idx]
}

// Palette 返回调色板的副本，主要供测试和前端取色器使用。
func Palette() []string {
	out := make([]string, len(palette))
	copy(out, palette[:])
	return out
}
