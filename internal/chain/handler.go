package chain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/audit"
	chainpkg "github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/pkg/chain"
	"github.com/gin-gonic/gin"
)

// Server 暴露存证验真 API。
type Server struct {
	Ledger chainpkg.Ledger
	Audit  audit.Store
}

// NewServer 构造存证 API；auditStore 用于重算记录哈希比对。
func NewServer(ledger chainpkg.Ledger, auditStore audit.Store) *Server {
	return &Server{Ledger: ledger, Audit: auditStore}
}

// ProofResponse GET /logs/:id/proof。Verified 表示路径可重算到根，Matches 表示当前记录内容与叶哈希一致。
type ProofResponse struct {
	Proof    *chainpkg.MerkleProof `json:"proof"`
	Verified bool                  `json:"verified"`
	Matches  bool                  `json:"matches"`
}

// Register 把路由挂到 rg（一般为 /api）。
func (s *Server) Register(rg *gin.RouterGroup) {
	rg.GET("/logs/:id/proof", s.handleProof)
	rg.GET("/anchor/batches", s.handleBatches)
	rg.GET("/anchor/health", s.handleHealth)
}

func (s *Server) handleProof(c *gin.Context) {
	id := c.Param("id")
	proof, err := s.Ledger.GetMerkleProof(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, chainpkg.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "entry not anchored yet"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := ProofResponse{Proof: proof, Verified: chainpkg.VerifyProof(proof)}
	if s.Audit != nil {
		if e, err := s.Audit.Get(c.Request.Context(), id); err == nil && e != nil {
			if h, err := EntryHash(e); err == nil {
				resp.Matches = h == proof.LeafHash
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleBatches(c *gin.Context) {
	batches, err := s.Ledger.Batches(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches})
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.Ledger.Healthy(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
