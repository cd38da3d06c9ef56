// Package chain 提供校验日志的 Merkle 批次存证：批次元数据、单条记录的验真路径与本地账本。
package chain

import "time"

// BatchRecord 存证批次元数据。
type BatchRecord struct {
	BatchID    string    `json:"batch_id"`
	MerkleRoot string    `json:"merkle_root"` // 十六进制
	Size       int       `json:"size"`
	Timestamp  time.Time `json:"timestamp"`
}

// MerkleProof 验真数据：给定记录 ID 返回所在批次的根与路径，客户端可用 VerifyProof 重算比对。
type MerkleProof struct {
	EntryID    string   `json:"entry_id"`
	BatchID    string   `json:"batch_id"`
	MerkleRoot string   `json:"merkle_root"`
	LeafHash   string   `json:"leaf_hash"`
	Index      int      `json:"index"`    // 叶在批次中的位置，决定每层拼接顺序
	Siblings   []string `json:"siblings"` // 由叶到根
}

// Leaf 批次中的一条叶节点：记录 ID 与其哈希。
type Leaf struct {
	EntryID string
	Hash    string
}
