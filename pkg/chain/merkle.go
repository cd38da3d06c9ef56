package chain

import (
	"crypto/sha256"
	"encoding/hex"
)

// BuildMerkleTree 构建 Merkle 树，返回根哈希与每个叶节点的验真路径。
// 某层节点数为奇数时末节点与自身配对，路径中记录自身哈希，VerifyProof 可据 Index 重算。
func BuildMerkleTree(leaves []Leaf) (rootHash string, proofs []MerkleProofPath) {
	if len(leaves) == 0 {
		return "", nil
	}
	layer := make([]string, len(leaves))
	for i := range leaves {
		layer[i] = leaves[i].Hash
	}
	layers := [][]string{layer}
	for len(layer) > 1 {
		next := make([]string, 0, (len(layer)+1)/2)
		for i := 0; i < len(layer); i += 2 {
			left := layer[i]
			right := left
			if i+1 < len(layer) {
				right = layer[i+1]
			}
			next = append(next, hashPair(left, right))
		}
		layer = next
		layers = append(layers, layer)
	}
	rootHash = layer[0]

	proofs = make([]MerkleProofPath, len(leaves))
	for leafIdx := range leaves {
		var path []string
		idx := leafIdx
		for l := 0; l < len(layers)-1; l++ {
			row := layers[l]
			sib := idx ^ 1
			if sib >= len(row) {
				sib = idx
			}
			path = append(path, row[sib])
			idx /= 2
		}
		proofs[leafIdx] = MerkleProofPath{LeafHash: leaves[leafIdx].Hash, Index: leafIdx, Siblings: path}
	}
	return rootHash, proofs
}

// VerifyProof 由叶哈希、位置与兄弟序列重算根并比较。
func VerifyProof(p *MerkleProof) bool {
	if p == nil || p.LeafHash == "" || p.Index < 0 {
		return false
	}
	h := p.LeafHash
	idx := p.Index
	for _, sib := range p.Siblings {
		if idx%2 == 0 {
			h = hashPair(h, sib)
		} else {
			h = hashPair(sib, h)
		}
		idx /= 2
	}
	return h == p.MerkleRoot
}

func hashPair(a, b string) string {
	h := sha256.New()
	h.Write([]byte(a))
	h.Write([]byte(b))
	return hex.EncodeToString(h.Sum(nil))
}

// MerkleProofPath 单个叶节点的验真路径。
type MerkleProofPath struct {
	LeafHash string
	Index    int
	Siblings []string
}
